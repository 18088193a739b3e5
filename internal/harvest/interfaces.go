package harvest

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PageSource fetches one page of raw items older than the watermark.
type PageSource interface {
	FetchPage(ctx context.Context, subject string, watermark Watermark) ([]RawItem, error)
}

// Comment is one top-level reply in a detail view, in source ranking order.
type Comment struct {
	Author string
	Body   string
}

// DetailSource returns the ranked top-level comments for a submission id or
// ErrNotFound.
type DetailSource interface {
	Comments(ctx context.Context, id string) ([]Comment, error)
}

// CheckpointStore persists a subject's collection.
type CheckpointStore interface {
	Load(ctx context.Context, subject string) (Collection, error)
	Save(ctx context.Context, subject string, collection Collection) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Fetcher performs a single GET against a remote source. Any HTTP status is
// returned as a response; only transport failures produce an error.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}
