// Package postgres provides the Postgres-backed crawl run ledger.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/newsarchive-crawler/internal/store"
)

const defaultTable = "crawl_runs"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for the run ledger.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it in tests.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// RunStore implements store.RunRepository on Postgres.
type RunStore struct {
	pool  pool
	table string
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore connects to Postgres using cfg.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: p, table: table}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(p pool, table string) (*RunStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the ledger table when it is missing.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id             uuid PRIMARY KEY,
			query          text NOT NULL,
			started_at     timestamptz NOT NULL,
			finished_at    timestamptz,
			state          text NOT NULL,
			articles_saved bigint NOT NULL DEFAULT 0,
			errors         bigint NOT NULL DEFAULT 0,
			retries        bigint NOT NULL DEFAULT 0,
			note           text
		);`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// StartRun inserts a running row; a repeated start for the same id is ignored.
func (s *RunStore) StartRun(ctx context.Context, id uuid.UUID, query string, startedAt time.Time) error {
	sql := fmt.Sprintf(`
		INSERT INTO %s (id, query, started_at, state)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING;`, s.table)
	if _, err := s.pool.Exec(ctx, sql, id, query, startedAt, string(store.RunRunning)); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// CompleteRun records the final state and counters of a run.
func (s *RunStore) CompleteRun(ctx context.Context, id uuid.UUID, c store.Completion) error {
	sql := fmt.Sprintf(`
		UPDATE %s
		SET finished_at = $1, state = $2, articles_saved = $3, errors = $4, retries = $5, note = $6
		WHERE id = $7;`, s.table)
	tag, err := s.pool.Exec(ctx, sql, c.FinishedAt, string(c.State), c.ArticlesSaved, c.Errors, c.Retries, c.Note, id)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete run %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (store.Run, error) {
	sql := fmt.Sprintf(`
		SELECT id, query, started_at, finished_at, state, articles_saved, errors, retries, note
		FROM %s
		WHERE id = $1;`, s.table)
	run, err := scanRun(s.pool.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs ordered by start time, newest first.
func (s *RunStore) ListRuns(ctx context.Context, limit, offset int) ([]store.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	sql := fmt.Sprintf(`
		SELECT id, query, started_at, finished_at, state, articles_saved, errors, retries, note
		FROM %s
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2;`, s.table)
	rows, err := s.pool.Query(ctx, sql, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
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
		run   store.Run
		state string
	)
	if err := row.Scan(
		&run.ID,
		&run.Query,
		&run.StartedAt,
		&run.FinishedAt,
		&state,
		&run.ArticlesSaved,
		&run.Errors,
		&run.Retries,
		&run.Note,
	); err != nil {
		return store.Run{}, err
	}
	run.State = store.RunState(state)
	return run, nil
}
