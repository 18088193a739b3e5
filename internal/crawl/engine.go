// Package crawl drives one resumable harvest run: it loads the checkpoint,
// walks the primary source page by page below a watermark, enriches each page,
// commits it to the collection and saves, until the source is exhausted, a
// record limit is reached or the run is cancelled.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/thread-harvester/internal/enricher"
	"github.com/JakeFAU/thread-harvester/internal/harvest"
	"github.com/JakeFAU/thread-harvester/internal/progress"
)

// State is a run's position in the crawl state machine.
type State string

// Run states. The last three are terminal.
const (
	StateStarting     State = "STARTING"
	StateRunning      State = "RUNNING"
	StateExhausted    State = "EXHAUSTED"
	StateCancelled    State = "CANCELLED"
	StateLimitReached State = "LIMIT_REACHED"
)

// Completed reports whether s ends a run that may be exported.
func (s State) Completed() bool {
	return s == StateExhausted || s == StateLimitReached
}

const defaultPagePause = 25 * time.Millisecond

// Enricher finishes a page of drafts.
type Enricher interface {
	Enrich(ctx context.Context, drafts []harvest.Draft) enricher.Result
}

// Config tunes the run loop.
type Config struct {
	// MaxRecords stops the run once the collection holds this many records.
	// Nil means unbounded.
	MaxRecords *int
	// PagePause is the politeness delay between committed pages.
	PagePause time.Duration
	// PageTimeout bounds one page request; zero leaves it to the transport.
	PageTimeout time.Duration
	// RetryBase and RetryMax shape the page retry backoff.
	RetryBase time.Duration
	RetryMax  time.Duration
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Pages       harvest.PageSource
	Enricher    Enricher
	Checkpoints harvest.CheckpointStore
	Clock       harvest.Clock
	IDs         harvest.IDGenerator
	Emitter     progress.Emitter
	Logger      *zap.Logger
}

// Result is what a run hands back to its caller.
type Result struct {
	RunID      uuid.UUID
	State      State
	Collection harvest.Collection
	// Completed is true for EXHAUSTED and LIMIT_REACHED.
	Completed bool
	// Pages counts committed pages; Added counts records they contributed.
	Pages int
	Added int
}

// Engine runs crawls. It is not safe to run the same subject concurrently.
type Engine struct {
	deps    Deps
	cfg     Config
	backoff backoff
	logger  *zap.Logger
}

// New validates deps and applies defaults.
func New(deps Deps, cfg Config) (*Engine, error) {
	switch {
	case deps.Pages == nil:
		return nil, errors.New("page source is required")
	case deps.Enricher == nil:
		return nil, errors.New("enricher is required")
	case deps.Checkpoints == nil:
		return nil, errors.New("checkpoint store is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	}
	if cfg.MaxRecords != nil && *cfg.MaxRecords < 1 {
		return nil, fmt.Errorf("max records must be positive, got %d", *cfg.MaxRecords)
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.Discard
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.PagePause < 0 {
		cfg.PagePause = 0
	} else if cfg.PagePause == 0 {
		cfg.PagePause = defaultPagePause
	}
	return &Engine{
		deps:    deps,
		cfg:     cfg,
		backoff: newBackoff(cfg.RetryBase, cfg.RetryMax),
		logger:  deps.Logger.Named("crawl"),
	}, nil
}

// run carries the mutable state of one Run call.
type run struct {
	*Engine
	id         uuid.UUID
	subject    string
	started    time.Time
	logger     *zap.Logger
	state      State
	collection harvest.Collection
	pages      int
	added      int
	// skipTo replaces the collection-derived watermark after a page whose
	// every item was filtered out, which would otherwise be refetched forever.
	skipTo *harvest.Watermark
}

// Run harvests subject until a terminal state. The collection is saved after
// every committed page and once more on exit. A collection already at
// MaxRecords ends the run before any remote call. Cancellation of ctx is
// observed between remote calls; in-flight calls finish on their own
// deadlines. A page fetched after cancellation is discarded; records already
// enriched when cancellation arrives are committed before stopping.
//
// The returned error is non-nil only for fatal conditions: a corrupt or
// unreadable checkpoint, a failed checkpoint write, or a non-retryable
// source error.
func (e *Engine) Run(ctx context.Context, subject string) (Result, error) {
	if subject == "" {
		return Result{}, errors.New("subject is required")
	}
	id, err := e.deps.IDs.NewRawID()
	if err != nil {
		return Result{}, fmt.Errorf("generate run id: %w", err)
	}
	r := &run{
		Engine:  e,
		id:      id,
		subject: subject,
		started: e.deps.Clock.Now(),
		logger:  e.logger.With(zap.String("run_id", id.String()), zap.String("subject", subject)),
		state:   StateStarting,
	}

	collection, err := e.deps.Checkpoints.Load(ctx, subject)
	if err != nil {
		return r.fail(fmt.Errorf("load checkpoint: %w", err))
	}
	r.collection = collection
	r.logger.Info("run starting",
		zap.Int("loaded", collection.Len()),
		zap.Stringer("watermark", collection.Watermark()),
	)
	r.emit(progress.Event{Stage: progress.StageRunStart, Total: int64(collection.Len())})

	r.state = StateRunning
	final, err := r.loop(ctx)
	if err != nil {
		return r.fail(err)
	}
	return r.finish(ctx, final)
}

func (r *run) loop(ctx context.Context) (State, error) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return StateCancelled, nil
		}
		if r.limitReached() {
			return StateLimitReached, nil
		}
		watermark := r.collection.Watermark()
		if r.skipTo != nil {
			watermark = *r.skipTo
		}

		start := r.deps.Clock.Now()
		items, err := r.fetchPage(ctx, watermark)
		if ctx.Err() != nil {
			return StateCancelled, nil
		}
		if err != nil {
			if !harvest.IsRetryable(err) {
				return r.state, fmt.Errorf("fetch page below %s: %w", watermark, err)
			}
			attempt++
			delay := r.backoff.Delay(attempt)
			r.logger.Warn("page fetch failed, retrying",
				zap.Stringer("watermark", watermark),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(err),
			)
			r.emit(progress.Event{
				Stage:     progress.StagePageRetry,
				Watermark: watermark.String(),
				Attempt:   attempt,
				Dur:       delay,
				Note:      err.Error(),
			})
			if !sleep(ctx, delay) {
				return StateCancelled, nil
			}
			continue
		}
		attempt = 0

		if len(items) == 0 {
			r.logger.Info("source exhausted", zap.Stringer("watermark", watermark))
			return StateExhausted, nil
		}

		drafts := shape(r.subject, items)
		enriched := r.deps.Enricher.Enrich(ctx, drafts)
		for _, miss := range enriched.Misses {
			evt := progress.Event{Stage: progress.StageEnrichMiss, ItemID: miss.ID, Note: miss.Kind.String()}
			if miss.Err != nil {
				evt.Note = miss.Err.Error()
			}
			r.emit(evt)
		}

		if err := r.commit(ctx, enriched.Records); err != nil {
			return r.state, err
		}
		r.skipTo = nil
		if len(enriched.Records) == 0 && !enriched.Interrupted {
			next := harvest.Below(oldest(items))
			r.skipTo = &next
		}
		r.logger.Info("page committed",
			zap.Stringer("watermark", watermark),
			zap.Int("fetched", len(items)),
			zap.Int("kept", len(drafts)),
			zap.Int("committed", len(enriched.Records)),
			zap.Int("total", r.collection.Len()),
		)
		r.emit(progress.Event{
			Stage:     progress.StagePageCommitted,
			Watermark: watermark.String(),
			Records:   int64(len(enriched.Records)),
			Total:     int64(r.collection.Len()),
			Dur:       r.deps.Clock.Now().Sub(start),
		})

		if enriched.Interrupted || ctx.Err() != nil {
			return StateCancelled, nil
		}
		if r.limitReached() {
			return StateLimitReached, nil
		}
		if !sleep(ctx, r.cfg.PagePause) {
			return StateCancelled, nil
		}
	}
}

// limitReached reports whether the collection already holds MaxRecords.
func (r *run) limitReached() bool {
	return r.cfg.MaxRecords != nil && r.collection.Len() >= *r.cfg.MaxRecords
}

// fetchPage calls the source on a context that ignores cancellation, so the
// call completes or fails before the signal is acted on.
func (r *run) fetchPage(ctx context.Context, watermark harvest.Watermark) ([]harvest.RawItem, error) {
	callCtx := context.WithoutCancel(ctx)
	if r.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, r.cfg.PageTimeout)
		defer cancel()
	}
	items, err := r.deps.Pages.FetchPage(callCtx, r.subject, watermark)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	return items, nil
}

// commit is the single point where the collection grows.
func (r *run) commit(ctx context.Context, records []harvest.Record) error {
	r.collection = r.collection.Append(records...)
	r.pages++
	r.added += len(records)
	return r.save(ctx, r.collection)
}

func (r *run) save(ctx context.Context, collection harvest.Collection) error {
	if err := r.deps.Checkpoints.Save(context.WithoutCancel(ctx), r.subject, collection); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (r *run) finish(ctx context.Context, state State) (Result, error) {
	r.state = state
	out := r.collection
	if state.Completed() && r.cfg.MaxRecords != nil {
		out = out.Truncate(*r.cfg.MaxRecords)
	}
	if err := r.save(ctx, out); err != nil {
		return r.fail(err)
	}

	dur := r.deps.Clock.Now().Sub(r.started)
	r.logger.Info("run finished",
		zap.String("state", string(state)),
		zap.Int("pages", r.pages),
		zap.Int("added", r.added),
		zap.Int("total", out.Len()),
		zap.Duration("elapsed", dur),
	)
	r.emit(progress.Event{
		Stage:   progress.StageRunDone,
		State:   string(state),
		Records: int64(r.added),
		Total:   int64(out.Len()),
		Dur:     dur,
	})
	return Result{
		RunID:      r.id,
		State:      state,
		Collection: out,
		Completed:  state.Completed(),
		Pages:      r.pages,
		Added:      r.added,
	}, nil
}

func (r *run) fail(err error) (Result, error) {
	r.logger.Error("run failed", zap.String("state", string(r.state)), zap.Error(err))
	r.emit(progress.Event{
		Stage: progress.StageRunError,
		Total: int64(r.collection.Len()),
		Dur:   r.deps.Clock.Now().Sub(r.started),
		Note:  err.Error(),
	})
	return Result{
		RunID:      r.id,
		State:      r.state,
		Collection: r.collection,
		Pages:      r.pages,
		Added:      r.added,
	}, err
}

func (r *run) emit(evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(r.id)
	evt.Subject = r.subject
	evt.TS = r.deps.Clock.Now()
	r.deps.Emitter.Emit(evt)
}
