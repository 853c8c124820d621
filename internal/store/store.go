// internal/store/store.go
package store

import (
	"context"
	"errors"
	"time"

	"github.com/xkilldash9x/formrunner/api/schemas"
)

var (
	// ErrJobNotFound is returned when no job has the requested id.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists is returned by Create when the id is already taken.
	ErrJobExists = errors.New("job already exists")
)

// DefaultListLimit caps List results when the filter sets no limit.
const DefaultListLimit = 100

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Status  schemas.JobStatus
	Variant string
	Limit   int
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 || f.Limit > DefaultListLimit {
		return DefaultListLimit
	}
	return f.Limit
}

func (f ListFilter) matches(job *schemas.Job) bool {
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	if f.Variant != "" && job.Variant != f.Variant {
		return false
	}
	return true
}

// JobStore persists job metadata and outcomes. Submissions are never stored.
type JobStore interface {
	Create(ctx context.Context, job *schemas.Job) error
	Get(ctx context.Context, id string) (*schemas.Job, error)
	Update(ctx context.Context, job *schemas.Job) error
	Delete(ctx context.Context, id string) error
	// List returns matching jobs, newest first.
	List(ctx context.Context, filter ListFilter) ([]*schemas.Job, error)
	// DeleteExpired drops finished jobs older than the store's result TTL.
	DeleteExpired(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// expired reports whether a finished job has outlived ttl at now.
func expired(job *schemas.Job, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && job.FinishedAt != nil && now.Sub(*job.FinishedAt) > ttl
}
