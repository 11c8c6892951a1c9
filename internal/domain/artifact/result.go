package artifact

import "time"

// Status is the caller-visible outcome of a lifecycle operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	// StatusSkipped means there was nothing to do (already exists, already
	// inactive). Distinct from success so callers can tell the two apart.
	StatusSkipped Status = "skipped"
)

// Result reports a refresh attempt. Expected operational failures come
// back as a failed Result with a nil Go error; a non-nil error is reserved
// for programmer mistakes caught before any I/O and for context
// cancellation.
type Result struct {
	ViewName   string        `json:"view_name"`
	SchemaName string        `json:"schema_name"`
	Strategy   string        `json:"strategy"`
	Status     Status        `json:"status"`
	RowCount   int64         `json:"row_count"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

func (r Result) Failed() bool { return r.Status == StatusFailed }
