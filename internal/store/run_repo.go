package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus mirrors the harvest_runs.status column.
type RunStatus string

// Run statuses persisted in harvest_runs.status.
const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunError     RunStatus = "error"
)

// Run models one row of harvest_runs.
type Run struct {
	// ID is the run identifier carried by progress events.
	ID uuid.UUID
	// Subject is the harvested forum.
	Subject string
	// StartedAt captures when the run loaded its checkpoint.
	StartedAt time.Time
	// FinishedAt is nil while the run is in progress.
	FinishedAt *time.Time
	// Status is running/completed/cancelled/error.
	Status RunStatus
	// State is the terminal crawl state, empty while running or on error.
	State string
	// Pages counts committed pages.
	Pages int64
	// Records counts records committed by this run.
	Records int64
	// Total is the collection size at the last update.
	Total int64
	// ErrorMessage optionally stores the failure reason.
	ErrorMessage *string
}

// RunRepository persists run history.
type RunRepository interface {
	// StartRun inserts the run row, or resets it if the id already exists.
	StartRun(ctx context.Context, id uuid.UUID, subject string, startedAt time.Time, total int64) error
	// RecordPages adds committed page and record deltas.
	RecordPages(ctx context.Context, id uuid.UUID, pages, records, total int64) error
	// FinishRun stamps the final status.
	FinishRun(ctx context.Context, id uuid.UUID, finishedAt time.Time, status RunStatus, state string, errMsg *string) error
	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	// ListRuns returns the newest runs first, optionally filtered by subject.
	ListRuns(ctx context.Context, subject string, limit, offset int) ([]Run, error)
}

// StatusForState maps a terminal crawl state onto a run status.
func StatusForState(state string) RunStatus {
	switch state {
	case "EXHAUSTED", "LIMIT_REACHED":
		return RunCompleted
	case "CANCELLED":
		return RunCancelled
	default:
		return RunError
	}
}
