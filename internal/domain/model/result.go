package model

import "time"

type Result struct {
	ID           ResultID     `json:"id"`
	CreatedAt    time.Time    `json:"created_at"`
	AssignmentID AssignmentID `json:"assignment_id"`
	Stdout       string       `json:"stdout"`
	Stderr       string       `json:"stderr"`
	ExitCode     *int32       `json:"exit_code"` // nil when the program was killed by a signal
}

type ResultFilter struct {
	AssignmentID *AssignmentID `json:"assignment_id,omitempty"`
}
