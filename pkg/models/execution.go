package models

import "time"

// ExecutionStatus is the server-side lifecycle state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "PENDING"
	ExecutionStatusRunning   ExecutionStatus = "RUNNING"
	ExecutionStatusCompleted ExecutionStatus = "COMPLETED"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
)

// IsTerminal reports whether no further transitions follow s.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// Execution is a server-run instance of a saved workflow. Clients only observe it.
type Execution struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	Status     ExecutionStatus `json:"status"`
	Result     any             `json:"result,omitempty"`
	ResultJSON *string         `json:"result_json,omitempty"`
	Error      *string         `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// ErrorMessage returns the execution's error text, or "" when none is set.
func (e *Execution) ErrorMessage() string {
	if e.Error == nil {
		return ""
	}

	return *e.Error
}

// Duration returns the run time of a finished execution.
func (e *Execution) Duration() (time.Duration, bool) {
	if e.FinishedAt == nil || e.StartedAt.IsZero() {
		return 0, false
	}

	return e.FinishedAt.Sub(e.StartedAt), true
}
