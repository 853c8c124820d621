// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formrunner/api/schemas"
	"github.com/xkilldash9x/formrunner/internal/api"
	"github.com/xkilldash9x/formrunner/internal/config"
	"github.com/xkilldash9x/formrunner/internal/engine"
	"github.com/xkilldash9x/formrunner/internal/worker"
)

// ComponentFactory builds the set of components the serve command runs.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// FactoryOption customizes the production factory.
type FactoryOption func(*concreteFactory)

// WithPoolOpener replaces how the PostgreSQL pool is opened.
func WithPoolOpener(open PoolOpener) FactoryOption {
	return func(f *concreteFactory) { f.openPool = open }
}

// WithPageLauncher replaces the chromedp launcher.
func WithPageLauncher(l schemas.PageLauncher) FactoryOption {
	return func(f *concreteFactory) { f.launcher = l }
}

type concreteFactory struct {
	openPool PoolOpener
	launcher schemas.PageLauncher
}

// NewComponentFactory creates the production component factory.
func NewComponentFactory(opts ...FactoryOption) ComponentFactory {
	f := &concreteFactory{openPool: OpenPostgresPool}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create wires store, runners, worker, engine and HTTP API together. Anything
// created before a failing step is shut down before returning.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	components := &Components{logger: logger}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Job store
	jobs, err := InitializeStore(ctx, cfg.Store(), logger, f.openPool)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize job store: %w", err)
		return nil, initializationErr
	}
	components.Store = jobs
	logger.Debug("Job store initialized.", zap.String("backend", cfg.Store().Backend))

	// 2. Form registry and browser launcher
	registry, launcher := InitializeRunners(cfg, logger)
	components.Registry = registry
	components.Launcher = launcher
	if f.launcher != nil {
		components.Launcher = f.launcher
	}
	logger.Debug("Form runners initialized.", zap.Strings("variants", registry.IDs()))

	// 3. Worker
	formWorker, err := worker.NewFormWorker(cfg, logger, components.Launcher, worker.WithRegistry(registry))
	if err != nil {
		initializationErr = fmt.Errorf("failed to create form worker: %w", err)
		return nil, initializationErr
	}
	components.Worker = formWorker

	// 4. Job engine
	jobEngine, err := engine.New(cfg, logger, jobs, formWorker)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize job engine: %w", err)
		return nil, initializationErr
	}
	components.Engine = jobEngine
	logger.Debug("Job engine initialized.")

	// 5. HTTP API
	components.Handler = api.NewHandler(jobEngine, jobs, registry, logger)
	router := api.NewRouter(components.Handler, cfg.Server().Mode)
	components.Server = api.NewServer(cfg.Server(), router, logger)

	logger.Info("All components initialized successfully.")
	return components, nil
}
