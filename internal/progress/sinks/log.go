package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/thread-harvester/internal/progress"
)

// LogSink emits one debug line per event. It is useful during development or
// audits where a durable store is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Debug("progress event",
			zap.Stringer("run_id", evt.RunUUID()),
			zap.String("stage", string(evt.Stage)),
			zap.String("subject", evt.Subject),
			zap.String("item_id", evt.ItemID),
			zap.Int64("records", evt.Records),
			zap.Int64("total", evt.Total),
			zap.String("watermark", evt.Watermark),
			zap.Int("attempt", evt.Attempt),
			zap.String("state", evt.State),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
