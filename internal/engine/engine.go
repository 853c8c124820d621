// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/formrunner/api/schemas"
	"github.com/xkilldash9x/formrunner/internal/config"
	"github.com/xkilldash9x/formrunner/internal/store"
)

var (
	// ErrQueueFull is returned by Submit when the job buffer has no room.
	ErrQueueFull = errors.New("job queue is full")
	// ErrEngineStopped is returned by Submit after Stop.
	ErrEngineStopped = errors.New("job engine is stopped")
)

const (
	persistTimeout         = 30 * time.Second
	defaultJanitorInterval = time.Minute
	hardLimitMessage       = "hard time limit exceeded"
	stoppedMessage         = "engine stopped before the job finished"
)

// Processor runs one attempt of a job. It must report an outcome for every
// call, including when ctx is cancelled.
type Processor interface {
	ProcessJob(ctx context.Context, job *schemas.Job, sub schemas.Submission) schemas.RunOutcome
}

// queued carries the submission alongside the job id. The submission lives
// only here and is never written to the store.
type queued struct {
	jobID string
	sub   schemas.Submission
}

// JobEngine accepts submissions, persists their jobs and runs them on a fixed
// pool of workers.
type JobEngine struct {
	cfg       config.EngineConfig
	logger    *zap.Logger
	jobs      store.JobStore
	processor Processor
	limiter   *rate.Limiter
	queue     chan queued
	wg        sync.WaitGroup

	janitorInterval time.Duration
	now             func() time.Time

	// stateLock guards the lifecycle fields and serializes Submit against Stop.
	stateLock sync.RWMutex
	isRunning bool
	stopped   bool
	cancel    context.CancelFunc
}

// New creates a JobEngine. The queue is allocated immediately so jobs can be
// submitted before Start.
func New(cfg config.Interface, logger *zap.Logger, jobs store.JobStore, processor Processor) (*JobEngine, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if jobs == nil {
		return nil, errors.New("job store cannot be nil")
	}
	if processor == nil {
		return nil, errors.New("processor cannot be nil")
	}

	engineCfg := cfg.Engine()
	queueSize := engineCfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}
	limit := rate.Inf
	if engineCfg.LaunchRate > 0 {
		limit = rate.Limit(engineCfg.LaunchRate)
	}
	burst := engineCfg.LaunchBurst
	if burst <= 0 {
		burst = 1
	}

	return &JobEngine{
		cfg:             engineCfg,
		logger:          logger.Named("engine"),
		jobs:            jobs,
		processor:       processor,
		limiter:         rate.NewLimiter(limit, burst),
		queue:           make(chan queued, queueSize),
		janitorInterval: defaultJanitorInterval,
		now:             time.Now,
	}, nil
}

// Submit records a pending job for the submission and queues it.
func (e *JobEngine) Submit(ctx context.Context, variant string, sub schemas.Submission) (*schemas.Job, error) {
	e.stateLock.RLock()
	defer e.stateLock.RUnlock()
	if e.stopped {
		return nil, ErrEngineStopped
	}
	if len(e.queue) == cap(e.queue) {
		return nil, ErrQueueFull
	}

	now := e.now().UTC()
	job := &schemas.Job{
		ID:        uuid.NewString(),
		Variant:   variant,
		Status:    schemas.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sub.Variant = variant
	if err := e.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to record job: %w", err)
	}

	select {
	case e.queue <- queued{jobID: job.ID, sub: sub}:
	default:
		// Another submitter took the last slot between the check and the send.
		if err := e.jobs.Delete(context.WithoutCancel(ctx), job.ID); err != nil {
			e.logger.Warn("Failed to remove unqueued job.", zap.String("job_id", job.ID), zap.Error(err))
		}
		return nil, ErrQueueFull
	}
	e.logger.Info("Job queued.", zap.String("job_id", job.ID), zap.String("variant", variant))
	return job, nil
}

// Start launches the worker pool and the expiry janitor.
func (e *JobEngine) Start(ctx context.Context) {
	e.stateLock.Lock()
	if e.isRunning || e.stopped {
		e.stateLock.Unlock()
		e.logger.Warn("JobEngine.Start called, but engine is already running or stopped.")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.isRunning = true
	e.stateLock.Unlock()

	concurrency := e.cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	e.logger.Info("Starting job engine worker pool", zap.Int("concurrency", concurrency))

	for i := 0; i < concurrency; i++ {
		e.wg.Add(1)
		go e.runWorker(runCtx, i+1)
	}
	e.wg.Add(1)
	go e.runJanitor(runCtx)
}

// Stop cancels in-flight jobs, waits for the workers to exit and fails any
// jobs still waiting in the queue. Submit returns ErrEngineStopped afterwards.
func (e *JobEngine) Stop() {
	e.stateLock.Lock()
	if e.stopped {
		e.stateLock.Unlock()
		return
	}
	e.stopped = true
	cancel := e.cancel
	e.stateLock.Unlock()

	e.logger.Info("Stopping job engine... waiting for workers to finish.")
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()

	for {
		select {
		case item := <-e.queue:
			e.abandon(item.jobID)
		default:
			e.stateLock.Lock()
			e.isRunning = false
			e.stateLock.Unlock()
			e.logger.Info("Job engine stopped gracefully.")
			return
		}
	}
}

// Running reports whether the worker pool is active.
func (e *JobEngine) Running() bool {
	e.stateLock.RLock()
	defer e.stateLock.RUnlock()
	return e.isRunning && !e.stopped
}

// QueueDepth returns the number of jobs waiting for a worker.
func (e *JobEngine) QueueDepth() int { return len(e.queue) }

func (e *JobEngine) runWorker(ctx context.Context, workerID int) {
	defer e.wg.Done()
	logger := e.logger.With(zap.Int("worker_id", workerID))
	logger.Debug("Worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Context cancelled, worker shutting down.", zap.Error(ctx.Err()))
			return
		case item := <-e.queue:
			e.process(ctx, item, logger.With(zap.String("job_id", item.jobID)))
		}
	}
}

func (e *JobEngine) runJanitor(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := e.jobs.DeleteExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					e.logger.Warn("Failed to delete expired jobs.", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				e.logger.Info("Deleted expired jobs.", zap.Int64("count", n))
			}
		}
	}
}

// process drives one job through its attempts until it completes, fails
// permanently or runs out of retries.
func (e *JobEngine) process(ctx context.Context, item queued, logger *zap.Logger) {
	job, err := e.jobs.Get(ctx, item.jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			logger.Info("Job was deleted before it ran, skipping.")
		} else {
			logger.Error("Failed to load queued job.", zap.Error(err))
		}
		return
	}

	for {
		if ctx.Err() != nil {
			e.finish(ctx, job, failed(stoppedMessage), logger)
			return
		}
		if err := e.limiter.Wait(ctx); err != nil {
			e.finish(ctx, job, failed(stoppedMessage), logger)
			return
		}

		now := e.now().UTC()
		job.Status = schemas.JobRunning
		job.Attempts++
		job.UpdatedAt = now
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
		e.persist(ctx, job, logger)

		logger.Info("Processing job", zap.String("variant", job.Variant), zap.Int("attempt", job.Attempts))
		outcome := e.attempt(ctx, job, item.sub, logger)
		if outcome.Completed() || !outcome.Retryable || job.Attempts > e.cfg.MaxRetries || ctx.Err() != nil {
			e.finish(ctx, job, outcome, logger)
			return
		}

		logger.Warn("Job attempt failed, retrying.",
			zap.Int("attempt", job.Attempts),
			zap.Duration("backoff", e.cfg.RetryBackoff),
			zap.String("error", outcome.Error),
		)
		job.Status = schemas.JobPending
		job.Error = outcome.Error
		job.UpdatedAt = e.now().UTC()
		e.persist(ctx, job, logger)

		if e.cfg.RetryBackoff > 0 {
			timer := time.NewTimer(e.cfg.RetryBackoff)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}
}

// attempt runs the processor once. The processor sees its context cancelled
// at the soft limit; at the hard limit the attempt is abandoned and its
// context cancelled so the runner closes its page.
func (e *JobEngine) attempt(ctx context.Context, job *schemas.Job, sub schemas.Submission, logger *zap.Logger) schemas.RunOutcome {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if e.cfg.SoftTimeLimit > 0 {
		var softCancel context.CancelFunc
		attemptCtx, softCancel = context.WithTimeout(attemptCtx, e.cfg.SoftTimeLimit)
		defer softCancel()
	}

	snapshot := *job
	done := make(chan schemas.RunOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Processor panicked.", zap.Any("panic_value", r), zap.Stack("stack"))
				done <- failed(fmt.Sprintf("processor panic: %v", r))
			}
		}()
		done <- e.processor.ProcessJob(attemptCtx, &snapshot, sub)
	}()

	if e.cfg.HardTimeLimit <= 0 {
		return <-done
	}
	hard := time.NewTimer(e.cfg.HardTimeLimit)
	defer hard.Stop()
	select {
	case outcome := <-done:
		return outcome
	case <-hard.C:
		cancel()
		logger.Error("Job exceeded hard time limit, abandoning attempt.", zap.Duration("limit", e.cfg.HardTimeLimit))
		return failed(hardLimitMessage)
	}
}

func (e *JobEngine) finish(ctx context.Context, job *schemas.Job, outcome schemas.RunOutcome, logger *zap.Logger) {
	now := e.now().UTC()
	job.UpdatedAt = now
	job.FinishedAt = &now
	job.Outcome = &outcome
	job.Error = outcome.Error
	if outcome.Completed() {
		job.Status = schemas.JobCompleted
		logger.Info("Job completed.", zap.Int("failed_interactions", len(outcome.FailedInteractions)))
	} else {
		job.Status = schemas.JobFailed
		logger.Warn("Job failed.", zap.Int("attempts", job.Attempts), zap.String("error", outcome.Error))
	}
	e.persist(ctx, job, logger)
}

// persist writes the job on a detached context so the final state is saved
// even while the engine shuts down.
func (e *JobEngine) persist(ctx context.Context, job *schemas.Job, logger *zap.Logger) {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := e.jobs.Update(persistCtx, job); err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			logger.Info("Job was deleted while running.")
			return
		}
		logger.Error("Failed to persist job state.", zap.String("status", string(job.Status)), zap.Error(err))
	}
}

// abandon fails a job that never reached a worker.
func (e *JobEngine) abandon(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	logger := e.logger.With(zap.String("job_id", jobID))
	job, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		return
	}
	e.finish(ctx, job, failed(stoppedMessage), logger)
}

func failed(msg string) schemas.RunOutcome {
	return schemas.RunOutcome{Status: schemas.RunFailed, Error: msg}
}
