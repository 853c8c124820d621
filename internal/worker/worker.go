// internal/worker/worker.go
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formrunner/api/schemas"
	"github.com/xkilldash9x/formrunner/internal/config"
	"github.com/xkilldash9x/formrunner/internal/forms"
)

// FormRunner fills one form variant on a page it takes ownership of.
type FormRunner interface {
	Validate(sub schemas.Submission) error
	// Run must close page before returning.
	Run(ctx context.Context, page schemas.Page, sub schemas.Submission) schemas.RunOutcome
}

// FormWorker executes job attempts in-process. It resolves the variant's
// runner, launches a dedicated browser page and hands it to the runner.
type FormWorker struct {
	cfg      config.Interface
	logger   *zap.Logger
	launcher schemas.PageLauncher
	registry *forms.Registry
	runners  map[string]FormRunner
}

// Option is a function that configures a FormWorker.
type Option func(*FormWorker)

// WithRunners replaces the default runner registry. Used by tests.
func WithRunners(runners map[string]FormRunner) Option {
	return func(w *FormWorker) {
		w.runners = runners
	}
}

// WithRegistry registers the runners of an existing registry so the worker
// and the API validate against the same tables.
func WithRegistry(reg *forms.Registry) Option {
	return func(w *FormWorker) {
		w.registry = reg
	}
}

// NewFormWorker initializes a worker with a runner for every built-in variant
// unless WithRunners is given.
func NewFormWorker(cfg config.Interface, logger *zap.Logger, launcher schemas.PageLauncher, opts ...Option) (*FormWorker, error) {
	if launcher == nil {
		return nil, errors.New("page launcher cannot be nil")
	}
	w := &FormWorker{
		cfg:      cfg,
		logger:   logger.Named("worker"),
		launcher: launcher,
		runners:  make(map[string]FormRunner),
	}
	for _, opt := range opts {
		opt(w)
	}

	if len(w.runners) == 0 {
		if w.registry == nil {
			if cfg == nil {
				return nil, errors.New("config is required to build the default runners")
			}
			w.registry = forms.NewRegistry(cfg.Forms(), w.logger)
		}
		w.registerRunners(w.registry)
	}
	return w, nil
}

func (w *FormWorker) registerRunners(reg *forms.Registry) {
	for _, id := range reg.IDs() {
		runner, _ := reg.GetRunner(id)
		w.runners[id] = runner
	}
	w.logger.Info("Form runners registered", zap.Strings("variants", reg.IDs()))
}

// ProcessJob runs one attempt of job. Configuration problems fail the attempt
// before any browser is launched.
func (w *FormWorker) ProcessJob(ctx context.Context, job *schemas.Job, sub schemas.Submission) schemas.RunOutcome {
	logger := w.logger.With(zap.String("job_id", job.ID), zap.String("variant", job.Variant))

	runner, ok := w.runners[job.Variant]
	if !ok {
		err := &forms.ConfigurationError{Kind: forms.UnknownVariant, Name: job.Variant}
		logger.Error("No runner registered for variant.", zap.Error(err))
		return rejected(err)
	}
	if err := runner.Validate(sub); err != nil {
		logger.Error("Submission rejected.", zap.Error(err))
		return rejected(err)
	}

	page, err := w.launcher.Launch(ctx)
	if err != nil {
		logger.Error("Failed to launch browser.", zap.Error(err))
		return schemas.RunOutcome{
			Status:    schemas.RunFailed,
			Error:     fmt.Sprintf("failed to launch browser: %v", err),
			Retryable: ctx.Err() == nil,
		}
	}

	logger.Debug("Dispatching job to runner.")
	return runner.Run(ctx, page, sub)
}

func rejected(err error) schemas.RunOutcome {
	return schemas.RunOutcome{
		Status:    schemas.RunFailed,
		Error:     err.Error(),
		Retryable: !forms.IsConfigurationError(err),
	}
}
