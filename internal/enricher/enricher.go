// Package enricher attaches the top comments of each submission to its draft
// record, tolerating per-item lookup failures.
package enricher

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/thread-harvester/internal/harvest"
)

const (
	defaultPace           = 25 * time.Millisecond
	defaultRequestTimeout = 30 * time.Second
)

// Kind tags the outcome of one detail lookup.
type Kind int

// Outcome kinds.
const (
	Found Kind = iota
	NotFound
	Failed
)

func (k Kind) String() string {
	switch k {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of looking up one draft.
type Outcome struct {
	Kind        Kind
	Annotations []harvest.Annotation
	Err         error
}

// Miss describes a draft that was finished without annotations because its
// lookup did not succeed.
type Miss struct {
	ID   string
	Kind Kind
	Err  error
}

// Result carries the finished records in input order. When Interrupted is
// set the run context was cancelled and Records holds only the prefix that
// was enriched before the signal was observed.
type Result struct {
	Records     []harvest.Record
	Misses      []Miss
	Interrupted bool
}

// Config tunes pacing and per-request bounds.
type Config struct {
	// Pace is the minimum spacing between detail requests.
	Pace time.Duration
	// RequestTimeout bounds each detail request.
	RequestTimeout time.Duration
}

// Enricher looks up drafts one at a time against a DetailSource.
type Enricher struct {
	source  harvest.DetailSource
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger
}

// New builds an Enricher around the detail-source capability.
func New(source harvest.DetailSource, cfg Config, logger *zap.Logger) (*Enricher, error) {
	if source == nil {
		return nil, errors.New("detail source is required")
	}
	if cfg.Pace <= 0 {
		cfg.Pace = defaultPace
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		source:  source,
		limiter: rate.NewLimiter(rate.Every(cfg.Pace), 1),
		timeout: cfg.RequestTimeout,
		logger:  logger,
	}, nil
}

// Enrich finishes every draft. Lookup failures never fail the batch; the
// affected records carry zero annotations and are reported in Misses.
func (e *Enricher) Enrich(ctx context.Context, drafts []harvest.Draft) Result {
	result := Result{Records: make([]harvest.Record, 0, len(drafts))}
	for _, draft := range drafts {
		if ctx.Err() != nil {
			result.Interrupted = true
			return result
		}
		if err := e.limiter.Wait(ctx); err != nil {
			result.Interrupted = true
			return result
		}

		outcome := e.lookup(ctx, draft.ID)
		switch outcome.Kind {
		case NotFound:
			e.logger.Info("submission detail not found", zap.String("id", draft.ID))
			result.Misses = append(result.Misses, Miss{ID: draft.ID, Kind: outcome.Kind})
		case Failed:
			e.logger.Warn("submission detail lookup failed",
				zap.String("id", draft.ID),
				zap.Error(outcome.Err),
			)
			result.Misses = append(result.Misses, Miss{ID: draft.ID, Kind: outcome.Kind, Err: outcome.Err})
		}
		result.Records = append(result.Records, draft.Finish(outcome.Annotations))
	}
	return result
}

// lookup runs the request detached from cancellation so an in-flight call
// finishes or fails on its own timeout.
func (e *Enricher) lookup(ctx context.Context, id string) Outcome {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	comments, err := e.source.Comments(callCtx, id)
	switch {
	case errors.Is(err, harvest.ErrNotFound):
		return Outcome{Kind: NotFound}
	case err != nil:
		return Outcome{Kind: Failed, Err: err}
	}
	return Outcome{Kind: Found, Annotations: SelectAnnotations(comments)}
}

// SelectAnnotations walks comments in ranking order, skips removed bodies,
// normalises missing authors and keeps at most harvest.MaxAnnotations.
func SelectAnnotations(comments []harvest.Comment) []harvest.Annotation {
	out := make([]harvest.Annotation, 0, harvest.MaxAnnotations)
	for _, c := range comments {
		if len(out) == harvest.MaxAnnotations {
			break
		}
		if c.Body == harvest.DeletedMarker {
			continue
		}
		author := c.Author
		if author == "" {
			author = harvest.DeletedMarker
		}
		out = append(out, harvest.Annotation{Author: author, Body: c.Body})
	}
	return out
}
