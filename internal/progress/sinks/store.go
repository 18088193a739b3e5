package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/thread-harvester/internal/progress"
	"github.com/JakeFAU/thread-harvester/internal/store"
)

// StoreSink persists run history via a store.RunRepository. Page commits in a
// batch are collapsed into one delta per run to reduce write amplification.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

type pageDelta struct {
	pages   int64
	records int64
	total   int64
}

// Consume forwards the batch to the repository in event order. Pending page
// deltas for a run are written before that run is finished.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	pending := make(map[uuid.UUID]*pageDelta)
	order := make([]uuid.UUID, 0, 1)

	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.StartRun(ctx, runID, evt.Subject, evt.TS, evt.Total); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StagePageCommitted:
			delta, ok := pending[runID]
			if !ok {
				delta = &pageDelta{}
				pending[runID] = delta
				order = append(order, runID)
			}
			delta.pages++
			delta.records += evt.Records
			delta.total = evt.Total
		case progress.StageRunDone, progress.StageRunError:
			if err := s.flushRun(ctx, runID, pending); err != nil {
				return err
			}
			if err := s.finish(ctx, runID, evt); err != nil {
				return err
			}
		}
	}

	for _, runID := range order {
		if err := s.flushRun(ctx, runID, pending); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) flushRun(ctx context.Context, runID uuid.UUID, pending map[uuid.UUID]*pageDelta) error {
	delta, ok := pending[runID]
	if !ok {
		return nil
	}
	delete(pending, runID)
	if err := s.repo.RecordPages(ctx, runID, delta.pages, delta.records, delta.total); err != nil {
		return fmt.Errorf("record pages: %w", err)
	}
	return nil
}

func (s *StoreSink) finish(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	status := store.StatusForState(evt.State)
	var note *string
	if evt.Stage == progress.StageRunError {
		status = store.RunError
		if evt.Note != "" {
			msg := evt.Note
			note = &msg
		}
	}
	if err := s.repo.FinishRun(ctx, runID, evt.TS, status, evt.State, note); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	s.logger.Debug("run history finalized",
		zap.Stringer("run_id", runID),
		zap.String("status", string(status)),
	)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
