package model

import (
	"slices"
	"time"
)

// Interval mirrors a PostgreSQL interval.
type Interval struct {
	Months       int32 `json:"months"`
	Days         int32 `json:"days"`
	Microseconds int64 `json:"microseconds"`
}

// IntervalOf builds an interval holding only a time component.
func IntervalOf(d time.Duration) Interval {
	return Interval{Microseconds: d.Microseconds()}
}

// Duration flattens the interval the way PostgreSQL does when it needs a fixed
// length: a month counts as 30 days and a day as 24 hours.
func (i Interval) Duration() time.Duration {
	days := time.Duration(i.Months)*30 + time.Duration(i.Days)
	return days*24*time.Hour + time.Duration(i.Microseconds)*time.Microsecond
}

type Task struct {
	ID                TaskID    `json:"id"`
	CreatedAt         time.Time `json:"created_at"`
	Deadline          Interval  `json:"deadline"`
	ProjectID         ProjectID `json:"project_id"`
	Stdin             string    `json:"stdin"`
	AssignmentsNeeded int32     `json:"assignments_needed"`
	AssignmentUserIDs []UserID  `json:"assignment_user_ids"`
}

// AcceptsUser reports whether the task still has a free replication slot that
// userID is allowed to take.
func (t *Task) AcceptsUser(userID UserID) bool {
	return int32(len(t.AssignmentUserIDs)) < t.AssignmentsNeeded &&
		!slices.Contains(t.AssignmentUserIDs, userID)
}

type TaskFilter struct {
	ProjectID *ProjectID `json:"project_id,omitempty"`
}
