// File: cmd/serve.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/formrunner/internal/config"
	"github.com/xkilldash9x/formrunner/internal/observability"
	"github.com/xkilldash9x/formrunner/internal/service"
)

func newServeCmd() *cobra.Command {
	var (
		addr    string
		workers int
		strict  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the job engine",
		Long: `serve accepts form submissions over HTTP, queues them and fills each one in a
dedicated browser. It runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.SetServerAddr(addr)
			}
			if cmd.Flags().Changed("workers") {
				cfg.SetEngineWorkerConcurrency(workers)
			}
			if cmd.Flags().Changed("strict") {
				cfg.SetFormsStrictAnswers(strict)
			}
			return runServe(cmd.Context(), cfg, observability.GetLogger(), service.NewComponentFactory())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides server.addr)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "number of concurrent form runs (overrides engine.worker_concurrency)")
	cmd.Flags().BoolVar(&strict, "strict", false, "reject section answer lists whose length does not match the form")
	return cmd
}

// runServe builds every component and runs the engine and HTTP server until
// ctx is cancelled or either of them fails.
func runServe(ctx context.Context, cfg config.Interface, logger *zap.Logger, factory service.ComponentFactory) error {
	components, err := factory.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Shutdown()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		components.Start(gctx)
		<-gctx.Done()
		// Stop fails whatever is still queued; the store outlives it.
		components.Engine.Stop()
		return nil
	})
	g.Go(func() error {
		return components.Server.Run(gctx)
	})

	logger.Info("formrunner is serving.",
		zap.String("addr", cfg.Server().Addr),
		zap.Int("workers", cfg.Engine().WorkerConcurrency),
		zap.String("store", cfg.Store().Backend),
	)
	if err := g.Wait(); err != nil {
		logger.Error("formrunner stopped with an error.", zap.Error(err))
		return err
	}
	logger.Info("formrunner shut down cleanly.")
	return nil
}
