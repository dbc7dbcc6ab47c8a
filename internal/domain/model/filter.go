package model

import (
	"fmt"
	"net/url"
	"strconv"
)

// Filters travel as URL query parameters. An absent parameter leaves the
// corresponding field nil, which matches every row.

func ParseUserFilter(q url.Values) (UserFilter, error) {
	var f UserFilter
	var err error
	f.Disabled, err = queryBool(q, "disabled")
	return f, err
}

func (f UserFilter) Values() url.Values {
	q := url.Values{}
	setBool(q, "disabled", f.Disabled)
	return q
}

func ParseProjectFilter(q url.Values) (ProjectFilter, error) {
	var f ProjectFilter
	var err error
	f.Disabled, err = queryBool(q, "disabled")
	return f, err
}

func (f ProjectFilter) Values() url.Values {
	q := url.Values{}
	setBool(q, "disabled", f.Disabled)
	return q
}

func ParsePlatformFilter(url.Values) (PlatformFilter, error) {
	return PlatformFilter{}, nil
}

func (PlatformFilter) Values() url.Values { return url.Values{} }

func ParseProjectVersionFilter(q url.Values) (ProjectVersionFilter, error) {
	var f ProjectVersionFilter
	var err error
	if f.Disabled, err = queryBool(q, "disabled"); err != nil {
		return f, err
	}
	if f.ProjectID, err = queryID[ProjectID](q, "project_id"); err != nil {
		return f, err
	}
	f.PlatformID, err = queryID[PlatformID](q, "platform_id")
	return f, err
}

func (f ProjectVersionFilter) Values() url.Values {
	q := url.Values{}
	setBool(q, "disabled", f.Disabled)
	setID(q, "project_id", f.ProjectID)
	setID(q, "platform_id", f.PlatformID)
	return q
}

func ParseTaskFilter(q url.Values) (TaskFilter, error) {
	var f TaskFilter
	var err error
	f.ProjectID, err = queryID[ProjectID](q, "project_id")
	return f, err
}

func (f TaskFilter) Values() url.Values {
	q := url.Values{}
	setID(q, "project_id", f.ProjectID)
	return q
}

func ParseAssignmentFilter(q url.Values) (AssignmentFilter, error) {
	var f AssignmentFilter
	var err error
	if f.TaskID, err = queryID[TaskID](q, "task_id"); err != nil {
		return f, err
	}
	if f.UserID, err = queryID[UserID](q, "user_id"); err != nil {
		return f, err
	}
	if s := q.Get("state"); s != "" {
		state, err := ParseAssignmentState(s)
		if err != nil {
			return f, err
		}
		f.State = &state
	}
	return f, nil
}

func (f AssignmentFilter) Values() url.Values {
	q := url.Values{}
	setID(q, "task_id", f.TaskID)
	setID(q, "user_id", f.UserID)
	if f.State != nil {
		q.Set("state", string(*f.State))
	}
	return q
}

func ParseResultFilter(q url.Values) (ResultFilter, error) {
	var f ResultFilter
	var err error
	f.AssignmentID, err = queryID[AssignmentID](q, "assignment_id")
	return f, err
}

func (f ResultFilter) Values() url.Values {
	q := url.Values{}
	setID(q, "assignment_id", f.AssignmentID)
	return q
}

func queryBool(q url.Values, key string) (*bool, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("query parameter %s: %w", key, err)
	}
	return &b, nil
}

func queryID[ID ~int64](q url.Values, key string) (*ID, error) {
	s := q.Get(key)
	if s == "" {
		return nil, nil
	}
	id, err := ParseID[ID](s)
	if err != nil {
		return nil, fmt.Errorf("query parameter %s: %w", key, err)
	}
	return &id, nil
}

func setBool(q url.Values, key string, b *bool) {
	if b != nil {
		q.Set(key, strconv.FormatBool(*b))
	}
}

func setID[ID ~int64](q url.Values, key string, id *ID) {
	if id != nil {
		q.Set(key, strconv.FormatInt(int64(*id), 10))
	}
}
