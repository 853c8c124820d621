// internal/engine/engine_test.go
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formrunner/api/schemas"
	"github.com/xkilldash9x/formrunner/internal/config"
	"github.com/xkilldash9x/formrunner/internal/mocks"
	"github.com/xkilldash9x/formrunner/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// processorFunc adapts a function to the Processor interface.
type processorFunc func(ctx context.Context, job *schemas.Job, sub schemas.Submission) schemas.RunOutcome

func (f processorFunc) ProcessJob(ctx context.Context, job *schemas.Job, sub schemas.Submission) schemas.RunOutcome {
	return f(ctx, job, sub)
}

func completed() schemas.RunOutcome { return schemas.RunOutcome{Status: schemas.RunCompleted} }

func retryable(msg string) schemas.RunOutcome {
	return schemas.RunOutcome{Status: schemas.RunFailed, Error: msg, Retryable: true}
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		QueueSize:         10,
		WorkerConcurrency: 2,
		MaxRetries:        3,
		RetryBackoff:      time.Millisecond,
	}
}

func newTestEngine(t *testing.T, cfg config.EngineConfig, jobs store.JobStore, p Processor) *JobEngine {
	t.Helper()
	mockCfg := new(mocks.MockConfig)
	mockCfg.On("Engine").Return(cfg)

	e, err := New(mockCfg, zaptest.NewLogger(t), jobs, p)
	require.NoError(t, err)
	t.Cleanup(e.Stop)
	return e
}

func waitForStatus(t *testing.T, jobs store.JobStore, id string, status schemas.JobStatus) *schemas.Job {
	t.Helper()
	var job *schemas.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = jobs.Get(context.Background(), id)
		return err == nil && job.Status == status
	}, 5*time.Second, 5*time.Millisecond, "job %s never reached %s", id, status)
	return job
}

func TestNew_ValidatesDependencies(t *testing.T) {
	mockCfg := new(mocks.MockConfig)
	mockCfg.On("Engine").Return(testEngineConfig())
	jobs := store.NewMemoryStore(0)
	p := processorFunc(func(context.Context, *schemas.Job, schemas.Submission) schemas.RunOutcome { return completed() })

	_, err := New(nil, zap.NewNop(), jobs, p)
	assert.EqualError(t, err, "config cannot be nil")
	_, err = New(mockCfg, nil, jobs, p)
	assert.EqualError(t, err, "logger cannot be nil")
	_, err = New(mockCfg, zap.NewNop(), nil, p)
	assert.EqualError(t, err, "job store cannot be nil")
	_, err = New(mockCfg, zap.NewNop(), jobs, nil)
	assert.EqualError(t, err, "processor cannot be nil")
}

func TestJobEngine_CompletesJob(t *testing.T) {
	jobs := store.NewMemoryStore(0)
	var got schemas.Submission
	var mu sync.Mutex
	e := newTestEngine(t, testEngineConfig(), jobs, processorFunc(func(_ context.Context, job *schemas.Job, sub schemas.Submission) schemas.RunOutcome {
		mu.Lock()
		got = sub
		mu.Unlock()
		return schemas.RunOutcome{
			Status:             schemas.RunCompleted,
			FailedInteractions: []schemas.InteractionFailure{{Step: "atencion[1]", Error: "timeout"}},
		}
	}))
	e.Start(context.Background())
	assert.True(t, e.Running())

	job, err := e.Submit(context.Background(), "form1", schemas.Submission{Recommendation: 10, Satisfaction: 9})
	require.NoError(t, err)
	assert.Equal(t, schemas.JobPending, job.Status)
	assert.NotEmpty(t, job.ID)

	done := waitForStatus(t, jobs, job.ID, schemas.JobCompleted)
	assert.Equal(t, 1, done.Attempts)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.FinishedAt)
	require.NotNil(t, done.Outcome)
	assert.Len(t, done.Outcome.FailedInteractions, 1)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "form1", got.Variant, "the queued submission carries the variant")
	assert.Equal(t, 10, got.Recommendation)
}

func TestJobEngine_Retries(t *testing.T) {
	t.Run("retryable failures are retried until success", func(t *testing.T) {
		jobs := store.NewMemoryStore(0)
		var calls atomic.Int32
		e := newTestEngine(t, testEngineConfig(), jobs, processorFunc(func(context.Context, *schemas.Job, schemas.Submission) schemas.RunOutcome {
			if calls.Add(1) < 3 {
				return retryable("navigation failed")
			}
			return completed()
		}))
		e.Start(context.Background())

		job, err := e.Submit(context.Background(), "form2", schemas.Submission{})
		require.NoError(t, err)
		done := waitForStatus(t, jobs, job.ID, schemas.JobCompleted)
		assert.Equal(t, 3, done.Attempts)
		assert.Empty(t, done.Error)
	})

	t.Run("retries stop at max_retries", func(t *testing.T) {
		jobs := store.NewMemoryStore(0)
		cfg := testEngineConfig()
		cfg.MaxRetries = 2
		var calls atomic.Int32
		e := newTestEngine(t, cfg, jobs, processorFunc(func(context.Context, *schemas.Job, schemas.Submission) schemas.RunOutcome {
			calls.Add(1)
			return retryable("navigation failed")
		}))
		e.Start(context.Background())

		job, err := e.Submit(context.Background(), "form2", schemas.Submission{})
		require.NoError(t, err)
		done := waitForStatus(t, jobs, job.ID, schemas.JobFailed)
		assert.Equal(t, 3, done.Attempts, "one attempt plus two retries")
		assert.Equal(t, int32(3), calls.Load())
		assert.Equal(t, "navigation failed", done.Error)
	})

	t.Run("non-retryable failures fail immediately", func(t *testing.T) {
		jobs := store.NewMemoryStore(0)
		var calls atomic.Int32
		e := newTestEngine(t, testEngineConfig(), jobs, processorFunc(func(context.Context, *schemas.Job, schemas.Submission) schemas.RunOutcome {
			calls.Add(1)
			return schemas.RunOutcome{Status: schemas.RunFailed, Error: `unknown form variant "form9"`}
		}))
		e.Start(context.Background())

		job, err := e.Submit(context.Background(), "form9", schemas.Submission{})
		require.NoError(t, err)
		done := waitForStatus(t, jobs, job.ID, schemas.JobFailed)
		assert.Equal(t, 1, done.Attempts)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestJobEngine_TimeLimits(t *testing.T) {
	t.Run("soft limit cancels the attempt context", func(t *testing.T) {
		jobs := store.NewMemoryStore(0)
		cfg := testEngineConfig()
		cfg.SoftTimeLimit = 20 * time.Millisecond
		cfg.HardTimeLimit = 5 * time.Second
		e := newTestEngine(t, cfg, jobs, processorFunc(func(ctx context.Context, _ *schemas.Job, _ schemas.Submission) schemas.RunOutcome {
			<-ctx.Done()
			return schemas.RunOutcome{Status: schemas.RunFailed, Error: ctx.Err().Error()}
		}))
		e.Start(context.Background())

		job, err := e.Submit(context.Background(), "form1", schemas.Submission{})
		require.NoError(t, err)
		done := waitForStatus(t, jobs, job.ID, schemas.JobFailed)
		assert.Equal(t, context.DeadlineExceeded.Error(), done.Error)
	})

	t.Run("hard limit abandons the attempt", func(t *testing.T) {
		jobs := store.NewMemoryStore(0)
		cfg := testEngineConfig()
		cfg.HardTimeLimit = 20 * time.Millisecond
		release := make(chan struct{})
		e := newTestEngine(t, cfg, jobs, processorFunc(func(context.Context, *schemas.Job, schemas.Submission) schemas.RunOutcome {
			<-release
			return completed()
		}))
		e.Start(context.Background())
		defer close(release)

		job, err := e.Submit(context.Background(), "form1", schemas.Submission{})
		require.NoError(t, err)
		done := waitForStatus(t, jobs, job.ID, schemas.JobFailed)
		assert.Equal(t, hardLimitMessage, done.Error)
		assert.Equal(t, 1, done.Attempts, "hard limit failures are not retried")
	})

	t.Run("hard limit cancels the abandoned attempt without a soft limit", func(t *testing.T) {
		jobs := store.NewMemoryStore(0)
		cfg := testEngineConfig()
		cfg.SoftTimeLimit = 0
		cfg.HardTimeLimit = 30 * time.Millisecond
		cancelled := make(chan struct{})
		e := newTestEngine(t, cfg, jobs, processorFunc(func(ctx context.Context, _ *schemas.Job, _ schemas.Submission) schemas.RunOutcome {
			select {
			case <-ctx.Done():
				close(cancelled)
				return schemas.RunOutcome{Status: schemas.RunFailed, Error: ctx.Err().Error()}
			case <-time.After(5 * time.Second):
				return completed()
			}
		}))
		e.Start(context.Background())

		job, err := e.Submit(context.Background(), "form1", schemas.Submission{})
		require.NoError(t, err)
		done := waitForStatus(t, jobs, job.ID, schemas.JobFailed)
		assert.Equal(t, hardLimitMessage, done.Error)

		select {
		case <-cancelled:
		case <-time.After(time.Second):
			t.Fatal("abandoned attempt kept running after the hard limit")
		}
	})
}

func TestJobEngine_ProcessorPanic(t *testing.T) {
	jobs := store.NewMemoryStore(0)
	e := newTestEngine(t, testEngineConfig(), jobs, processorFunc(func(context.Context, *schemas.Job, schemas.Submission) schemas.RunOutcome {
		panic("boom")
	}))
	e.Start(context.Background())

	job, err := e.Submit(context.Background(), "form1", schemas.Submission{})
	require.NoError(t, err)
	done := waitForStatus(t, jobs, job.ID, schemas.JobFailed)
	assert.Contains(t, done.Error, "boom")
}

func TestJobEngine_QueueFull(t *testing.T) {
	jobs := store.NewMemoryStore(0)
	cfg := testEngineConfig()
	cfg.QueueSize = 1
	e := newTestEngine(t, cfg, jobs, processorFunc(func(context.Context, *schemas.Job, schemas.Submission) schemas.RunOutcome {
		return completed()
	}))

	// Not started, so nothing drains the queue.
	first, err := e.Submit(context.Background(), "form1", schemas.Submission{})
	require.NoError(t, err)
	_, err = e.Submit(context.Background(), "form1", schemas.Submission{})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, e.QueueDepth())

	listed, err := jobs.List(context.Background(), store.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, listed, 1, "a rejected submission leaves no job behind")

	e.Stop()
	abandoned, err := jobs.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, schemas.JobFailed, abandoned.Status)
	assert.Equal(t, stoppedMessage, abandoned.Error)
}

func TestJobEngine_StopRejectsSubmissions(t *testing.T) {
	e := newTestEngine(t, testEngineConfig(), store.NewMemoryStore(0), processorFunc(func(context.Context, *schemas.Job, schemas.Submission) schemas.RunOutcome {
		return completed()
	}))
	e.Start(context.Background())
	e.Stop()
	e.Stop()

	assert.False(t, e.Running())
	_, err := e.Submit(context.Background(), "form1", schemas.Submission{})
	assert.ErrorIs(t, err, ErrEngineStopped)

	// Start after Stop is refused.
	e.Start(context.Background())
	assert.False(t, e.Running())
}

func TestJobEngine_StopCancelsRunningJob(t *testing.T) {
	jobs := store.NewMemoryStore(0)
	started := make(chan struct{})
	e := newTestEngine(t, testEngineConfig(), jobs, processorFunc(func(ctx context.Context, _ *schemas.Job, _ schemas.Submission) schemas.RunOutcome {
		close(started)
		<-ctx.Done()
		return schemas.RunOutcome{Status: schemas.RunFailed, Error: "run aborted during navigation: context canceled", Retryable: true}
	}))
	e.Start(context.Background())

	job, err := e.Submit(context.Background(), "form1", schemas.Submission{})
	require.NoError(t, err)
	<-started
	e.Stop()

	done, err := jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, schemas.JobFailed, done.Status, "the final state is persisted despite cancellation")
	assert.Equal(t, 1, done.Attempts)
}

func TestJobEngine_SkipsDeletedJob(t *testing.T) {
	jobs := store.NewMemoryStore(0)
	var calls atomic.Int32
	e := newTestEngine(t, testEngineConfig(), jobs, processorFunc(func(context.Context, *schemas.Job, schemas.Submission) schemas.RunOutcome {
		calls.Add(1)
		return completed()
	}))

	job, err := e.Submit(context.Background(), "form1", schemas.Submission{})
	require.NoError(t, err)
	require.NoError(t, jobs.Delete(context.Background(), job.ID))

	e.Start(context.Background())
	require.Eventually(t, func() bool { return e.QueueDepth() == 0 }, time.Second, 5*time.Millisecond)
	e.Stop()
	assert.Zero(t, calls.Load())
}

// countingStore counts expiry sweeps.
type countingStore struct {
	*store.MemoryStore
	sweeps atomic.Int32
}

func (s *countingStore) DeleteExpired(ctx context.Context) (int64, error) {
	s.sweeps.Add(1)
	return s.MemoryStore.DeleteExpired(ctx)
}

func TestJobEngine_Janitor(t *testing.T) {
	jobs := &countingStore{MemoryStore: store.NewMemoryStore(time.Hour)}
	e := newTestEngine(t, testEngineConfig(), jobs, processorFunc(func(context.Context, *schemas.Job, schemas.Submission) schemas.RunOutcome {
		return completed()
	}))
	e.janitorInterval = 5 * time.Millisecond
	e.Start(context.Background())

	require.Eventually(t, func() bool { return jobs.sweeps.Load() >= 2 }, time.Second, 5*time.Millisecond)
}
