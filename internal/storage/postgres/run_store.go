// Package postgres provides the Postgres-backed run history.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/thread-harvester/internal/store"
)

// Schema creates the harvest_runs table when missing.
const Schema = `
CREATE TABLE IF NOT EXISTS harvest_runs (
	id            uuid PRIMARY KEY,
	subject       text        NOT NULL,
	started_at    timestamptz NOT NULL,
	finished_at   timestamptz,
	status        text        NOT NULL,
	state         text        NOT NULL DEFAULT '',
	pages         bigint      NOT NULL DEFAULT 0,
	records       bigint      NOT NULL DEFAULT 0,
	total         bigint      NOT NULL DEFAULT 0,
	error_message text
);
CREATE INDEX IF NOT EXISTS harvest_runs_subject_started_idx ON harvest_runs (subject, started_at DESC);
`

const runColumns = `id::text, subject, started_at, finished_at, status, state, pages, records, total, error_message`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

var _ store.RunRepository = (*RunStore)(nil)

// RunStore implements store.RunRepository on Postgres.
type RunStore struct {
	pool pool
}

// NewRunStore connects a pool using cfg.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: p}, nil
}

// NewRunStoreWithPool wraps an existing pool (primarily for testing).
func NewRunStoreWithPool(p pool) (*RunStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	return &RunStore{pool: p}, nil
}

// Close closes the underlying pool.
func (s *RunStore) Close() {
	s.pool.Close()
}

// EnsureSchema applies Schema.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// StartRun inserts a running row.
func (s *RunStore) StartRun(ctx context.Context, id uuid.UUID, subject string, startedAt time.Time, total int64) error {
	query := `
		INSERT INTO harvest_runs (id, subject, started_at, status, total)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET started_at = EXCLUDED.started_at, status = EXCLUDED.status, total = EXCLUDED.total;
	`
	if _, err := s.pool.Exec(ctx, query, id, subject, startedAt, store.RunRunning, total); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordPages adds page and record deltas and stores the latest total.
func (s *RunStore) RecordPages(ctx context.Context, id uuid.UUID, pages, records, total int64) error {
	query := `
		UPDATE harvest_runs
		SET pages = pages + $1, records = records + $2, total = $3
		WHERE id = $4;
	`
	tag, err := s.pool.Exec(ctx, query, pages, records, total, id)
	if err != nil {
		return fmt.Errorf("update run pages: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// FinishRun stamps the final status, state and error.
func (s *RunStore) FinishRun(
	ctx context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	state string,
	errMsg *string,
) error {
	query := `
		UPDATE harvest_runs
		SET finished_at = $1, status = $2, state = $3, error_message = $4
		WHERE id = $5;
	`
	tag, err := s.pool.Exec(ctx, query, finishedAt, status, state, errMsg, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// GetRun loads a single run.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (store.Run, error) {
	query := `SELECT ` + runColumns + ` FROM harvest_runs WHERE id = $1;`
	run, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Run{}, store.ErrNotFound
	}
	if err != nil {
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first. An empty subject lists every subject.
func (s *RunStore) ListRuns(ctx context.Context, subject string, limit, offset int) ([]store.Run, error) {
	query := `SELECT ` + runColumns + `
		FROM harvest_runs
		WHERE ($1 = '' OR subject = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	rows, err := s.pool.Query(ctx, query, subject, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run    store.Run
		id     string
		status string
	)
	err := row.Scan(
		&id,
		&run.Subject,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.State,
		&run.Pages,
		&run.Records,
		&run.Total,
		&run.ErrorMessage,
	)
	if err != nil {
		return store.Run{}, fmt.Errorf("scan: %w", err)
	}
	if run.ID, err = uuid.Parse(id); err != nil {
		return store.Run{}, fmt.Errorf("parse run id: %w", err)
	}
	run.Status = store.RunStatus(status)
	return run, nil
}
