package schemas

// RunStatus is the terminal state of one state-machine run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// InteractionFailure records one element interaction whose every strategy failed.
// The run continued past it.
type InteractionFailure struct {
	Step    string  `json:"step"`
	Locator Locator `json:"locator"`
	Value   string  `json:"value,omitempty"`
	Error   string  `json:"error"`
}

// RunOutcome is reported exactly once per run.
type RunOutcome struct {
	Status             RunStatus            `json:"status"`
	Error              string               `json:"error,omitempty"`
	FailedInteractions []InteractionFailure `json:"failed_interactions,omitempty"`
	// Retryable is false for failures that would repeat identically, such as
	// an unknown variant or section.
	Retryable bool `json:"-"`
}

// Completed reports whether the run reached the finalize action.
func (o RunOutcome) Completed() bool { return o.Status == RunCompleted }
