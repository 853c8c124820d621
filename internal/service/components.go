// File: internal/service/components.go
package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formrunner/api/schemas"
	"github.com/xkilldash9x/formrunner/internal/api"
	"github.com/xkilldash9x/formrunner/internal/engine"
	"github.com/xkilldash9x/formrunner/internal/forms"
	"github.com/xkilldash9x/formrunner/internal/store"
	"github.com/xkilldash9x/formrunner/internal/worker"
)

// Components holds every initialized service of a running formrunner
// instance and owns their shutdown order.
type Components struct {
	Store    store.JobStore
	Registry *forms.Registry
	Launcher schemas.PageLauncher
	Worker   *worker.FormWorker
	Engine   *engine.JobEngine
	Handler  *api.Handler
	Server   *api.Server

	logger       *zap.Logger
	shutdownOnce sync.Once
}

// Start launches the engine's workers and janitor.
func (c *Components) Start(ctx context.Context) {
	c.Engine.Start(ctx)
}

// Shutdown stops the producers first and closes the store last. Safe to call
// on partially built components and more than once.
func (c *Components) Shutdown() {
	c.shutdownOnce.Do(func() {
		logger := c.logger
		if logger == nil {
			logger = zap.NewNop()
		}
		logger.Debug("Beginning components shutdown sequence.")

		// Stop waits for in-flight runs, which close their own browsers.
		if c.Engine != nil {
			c.Engine.Stop()
			logger.Debug("Job engine stopped.")
		}

		if c.Store != nil {
			if err := c.Store.Close(); err != nil {
				logger.Warn("Error closing job store.", zap.Error(err))
			} else {
				logger.Debug("Job store closed.")
			}
		}
		logger.Info("All components shut down.")
	})
}
