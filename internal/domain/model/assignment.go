package model

import (
	"fmt"
	"time"
)

type AssignmentState string

const (
	AssignmentInit         AssignmentState = "init"
	AssignmentCanceled     AssignmentState = "canceled"
	AssignmentExpired      AssignmentState = "expired"
	AssignmentSubmitted    AssignmentState = "submitted"
	AssignmentValid        AssignmentState = "valid"
	AssignmentInvalid      AssignmentState = "invalid"
	AssignmentInconclusive AssignmentState = "inconclusive"
	AssignmentError        AssignmentState = "error"
)

var assignmentStates = []AssignmentState{
	AssignmentInit,
	AssignmentCanceled,
	AssignmentExpired,
	AssignmentSubmitted,
	AssignmentValid,
	AssignmentInvalid,
	AssignmentInconclusive,
	AssignmentError,
}

func ParseAssignmentState(s string) (AssignmentState, error) {
	for _, state := range assignmentStates {
		if string(state) == s {
			return state, nil
		}
	}
	return "", fmt.Errorf("unknown assignment state %q", s)
}

// IsTerminal reports whether no further transition leaves the state.
func (s AssignmentState) IsTerminal() bool {
	switch s {
	case AssignmentInit, AssignmentSubmitted:
		return false
	}
	return true
}

// IsLive reports whether the assignment still occupies a replication slot.
func (s AssignmentState) IsLive() bool {
	switch s {
	case AssignmentInit, AssignmentSubmitted, AssignmentValid, AssignmentInconclusive:
		return true
	}
	return false
}

type Assignment struct {
	ID         AssignmentID    `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	DeadlineAt time.Time       `json:"deadline_at"`
	TaskID     TaskID          `json:"task_id"`
	UserID     UserID          `json:"user_id"`
	State      AssignmentState `json:"state"`
}

type AssignmentFilter struct {
	TaskID *TaskID          `json:"task_id,omitempty"`
	UserID *UserID          `json:"user_id,omitempty"`
	State  *AssignmentState `json:"state,omitempty"`
}
