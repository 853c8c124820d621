package schemas

import "time"

// -- Job Schemas --

// JobStatus is the lifecycle state of a submission job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are expected for the status.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobRunning, JobCompleted, JobFailed:
		return true
	}
	return false
}

// Job tracks one submission of one form variant. The submission itself is
// held only by the engine's queue and is never stored with the job.
type Job struct {
	ID         string      `json:"task_id"`
	Variant    string      `json:"form_type"`
	Status     JobStatus   `json:"status"`
	Outcome    *RunOutcome `json:"outcome,omitempty"`
	Attempts   int         `json:"attempts"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}
