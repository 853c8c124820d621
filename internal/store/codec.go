// internal/store/codec.go
package store

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/formrunner/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func encodeJob(job *schemas.Job) ([]byte, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	return data, nil
}

func decodeJob(data []byte) (*schemas.Job, error) {
	var job schemas.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

// encodeOutcome returns nil for a nil outcome so it maps to SQL NULL.
func encodeOutcome(o *schemas.RunOutcome) ([]byte, error) {
	if o == nil {
		return nil, nil
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("failed to encode outcome: %w", err)
	}
	return data, nil
}

func decodeOutcome(data []byte) (*schemas.RunOutcome, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var o schemas.RunOutcome
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to decode outcome: %w", err)
	}
	return &o, nil
}

func cloneJob(job *schemas.Job) *schemas.Job {
	c := *job
	if job.Outcome != nil {
		o := *job.Outcome
		o.FailedInteractions = append([]schemas.InteractionFailure(nil), job.Outcome.FailedInteractions...)
		c.Outcome = &o
	}
	if job.StartedAt != nil {
		t := *job.StartedAt
		c.StartedAt = &t
	}
	if job.FinishedAt != nil {
		t := *job.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
