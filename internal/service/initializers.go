// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrunner/internal/browser"
	"github.com/xkilldash9x/formrunner/internal/config"
	"github.com/xkilldash9x/formrunner/internal/forms"
	"github.com/xkilldash9x/formrunner/internal/store"
)

// PoolOpener opens a PostgreSQL connection pool for the given URL.
type PoolOpener func(ctx context.Context, url string) (store.DBPool, error)

// OpenPostgresPool creates a pgx pool with the service's connection settings.
func OpenPostgresPool(ctx context.Context, url string) (store.DBPool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}
	return pool, nil
}

// InitializeStore opens the job store selected by cfg.Backend. The memory
// backend is the default and loses every job on exit.
func InitializeStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger, openPool PoolOpener) (store.JobStore, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", config.BackendMemory:
		logger.Warn("Using the in-memory job store; job records will be lost on exit.")
		return store.NewMemoryStore(cfg.ResultTTL), nil

	case config.BackendPostgres:
		if openPool == nil {
			openPool = OpenPostgresPool
		}
		logger.Info("Initializing PostgreSQL job store.")
		pool, err := openPool(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		pgStore, err := store.NewPostgresStore(ctx, pool, cfg.ResultTTL, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := pgStore.EnsureSchema(ctx); err != nil {
			_ = pgStore.Close()
			return nil, err
		}
		return pgStore, nil

	case config.BackendRedis:
		logger.Info("Initializing Redis job store.", zap.String("addr", cfg.Redis.Addr))
		return store.NewRedisStore(ctx, cfg.Redis, cfg.ResultTTL, logger)
	}
	return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
}

// InitializeRunners builds the form registry and the browser launcher its
// runners are driven through.
func InitializeRunners(cfg config.Interface, logger *zap.Logger) (*forms.Registry, *browser.Launcher) {
	registry := forms.NewRegistry(cfg.Forms(), logger)
	launcher := browser.NewLauncher(cfg.Browser(), logger)
	return registry, launcher
}
