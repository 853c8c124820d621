// internal/store/postgres.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrunner/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const (
	sqlCreateSchema = `
        CREATE TABLE IF NOT EXISTS jobs (
            id          TEXT PRIMARY KEY,
            form_type   TEXT NOT NULL,
            status      TEXT NOT NULL,
            attempts    INTEGER NOT NULL DEFAULT 0,
            error       TEXT NOT NULL DEFAULT '',
            outcome     JSONB,
            created_at  TIMESTAMPTZ NOT NULL,
            updated_at  TIMESTAMPTZ NOT NULL,
            started_at  TIMESTAMPTZ,
            finished_at TIMESTAMPTZ
        );
        CREATE INDEX IF NOT EXISTS jobs_created_at_idx ON jobs (created_at DESC);
    `
	sqlInsertJob = `
        INSERT INTO jobs (id, form_type, status, attempts, error, outcome, created_at, updated_at, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (id) DO NOTHING;
    `
	sqlUpdateJob = `
        UPDATE jobs SET
            status = $2,
            attempts = $3,
            error = $4,
            outcome = $5,
            updated_at = $6,
            started_at = $7,
            finished_at = $8
        WHERE id = $1;
    `
	sqlSelectJob = `
        SELECT id, form_type, status, attempts, error, outcome, created_at, updated_at, started_at, finished_at
        FROM jobs WHERE id = $1;
    `
	sqlListJobs = `
        SELECT id, form_type, status, attempts, error, outcome, created_at, updated_at, started_at, finished_at
        FROM jobs
        WHERE ($1 = '' OR status = $1) AND ($2 = '' OR form_type = $2)
        ORDER BY created_at DESC, id DESC
        LIMIT $3;
    `
	sqlDeleteJob     = `DELETE FROM jobs WHERE id = $1;`
	sqlDeleteExpired = `DELETE FROM jobs WHERE finished_at IS NOT NULL AND finished_at < $1;`
)

// PostgresStore is a JobStore backed by a single PostgreSQL table.
type PostgresStore struct {
	pool DBPool
	ttl  time.Duration
	log  *zap.Logger
	now  func() time.Time
}

var _ JobStore = (*PostgresStore)(nil)

// NewPostgresStore creates a store and verifies the connection.
func NewPostgresStore(ctx context.Context, pool DBPool, ttl time.Duration, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{
		pool: pool,
		ttl:  ttl,
		log:  logger.Named("store"),
		now:  time.Now,
	}, nil
}

// EnsureSchema creates the jobs table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateSchema); err != nil {
		return fmt.Errorf("failed to create jobs schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, job *schemas.Job) error {
	outcome, err := encodeOutcome(job.Outcome)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, sqlInsertJob,
		job.ID, job.Variant, string(job.Status), job.Attempts, job.Error, outcome,
		job.CreatedAt.UTC(), job.UpdatedAt.UTC(), utcPtr(job.StartedAt), utcPtr(job.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobExists
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*schemas.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, sqlSelectJob, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return job, nil
}

func (s *PostgresStore) Update(ctx context.Context, job *schemas.Job) error {
	outcome, err := encodeOutcome(job.Outcome)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, sqlUpdateJob,
		job.ID, string(job.Status), job.Attempts, job.Error, outcome,
		job.UpdatedAt.UTC(), utcPtr(job.StartedAt), utcPtr(job.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, sqlDeleteJob, id)
	if err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*schemas.Job, error) {
	rows, err := s.pool.Query(ctx, sqlListJobs, string(filter.Status), filter.Variant, filter.limit())
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*schemas.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job rows: %w", err)
	}
	return jobs, nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, sqlDeleteExpired, s.now().Add(-s.ttl).UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired jobs: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.log.Debug("Deleted expired jobs.", zap.Int64("count", n))
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanJob(row pgx.Row) (*schemas.Job, error) {
	var (
		job               schemas.Job
		status            string
		outcome           []byte
		started, finished pgtype.Timestamptz
	)
	err := row.Scan(&job.ID, &job.Variant, &status, &job.Attempts, &job.Error, &outcome,
		&job.CreatedAt, &job.UpdatedAt, &started, &finished)
	if err != nil {
		return nil, err
	}
	job.Status = schemas.JobStatus(status)
	job.StartedAt = timePtr(started)
	job.FinishedAt = timePtr(finished)
	if job.Outcome, err = decodeOutcome(outcome); err != nil {
		return nil, err
	}
	return &job, nil
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
