package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunState mirrors the crawl_runs.state column.
type RunState string

// Run states persisted in crawl_runs.state.
const (
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunStopped   RunState = "stopped"
	RunFailed    RunState = "failed"
)

// Run models one row of crawl_runs.
type Run struct {
	ID         uuid.UUID
	Query      string
	StartedAt  time.Time
	FinishedAt *time.Time
	State      RunState
	// ArticlesSaved counts articles persisted by the run.
	ArticlesSaved int64
	// Errors counts per-article failures.
	Errors  int64
	Retries int64
	Note    *string
}

// Completion carries the final counters of a run.
type Completion struct {
	FinishedAt    time.Time
	State         RunState
	ArticlesSaved int64
	Errors        int64
	Retries       int64
	Note          *string
}

// RunRepository persists the crawl run ledger.
type RunRepository interface {
	// StartRun inserts the run as running; repeating it is harmless.
	StartRun(ctx context.Context, id uuid.UUID, query string, startedAt time.Time) error
	// CompleteRun records the final state and counters.
	CompleteRun(ctx context.Context, id uuid.UUID, c Completion) error
	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, limit, offset int) ([]Run, error)
}
