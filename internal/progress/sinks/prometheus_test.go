package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/thread-harvester/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and gauges follow the event stream.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Subject: "golang", Total: 10},
		{RunID: runID, TS: now, Stage: progress.StagePageRetry, Subject: "golang", Attempt: 1},
		{RunID: runID, TS: now, Stage: progress.StageEnrichMiss, Subject: "golang", ItemID: "x"},
		{RunID: runID, TS: now, Stage: progress.StagePageCommitted, Subject: "golang",
			Records: 480, Total: 490, Dur: 3 * time.Second},
		{RunID: runID, TS: now, Stage: progress.StageRunDone, Subject: "golang",
			State: "EXHAUSTED", Total: 490, Dur: time.Minute},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.InDelta(t, 1, testutil.ToFloat64(sink.runsStarted), 0)
	require.InDelta(t, 0, testutil.ToFloat64(sink.runsRunning), 0)
	require.InDelta(t, 1, testutil.ToFloat64(sink.runsFinished.WithLabelValues("EXHAUSTED")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(sink.pagesCommitted.WithLabelValues("golang")), 0)
	require.InDelta(t, 480, testutil.ToFloat64(sink.recordsCommitted.WithLabelValues("golang")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(sink.pageRetries.WithLabelValues("golang")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(sink.enrichMisses.WithLabelValues("golang")), 0)
	require.InDelta(t, 490, testutil.ToFloat64(sink.collectionSize.WithLabelValues("golang")), 0)
	require.Equal(t, 1, testutil.CollectAndCount(sink.runDuration))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestPrometheusSinkErrorEndsRun(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)
	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Subject: "golang"},
	}))
	require.InDelta(t, 1, testutil.ToFloat64(sink.runsRunning), 0)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunError, Subject: "golang", Note: "disk full"},
	}))
	require.InDelta(t, 0, testutil.ToFloat64(sink.runsRunning), 0)
	require.InDelta(t, 1, testutil.ToFloat64(sink.runsFinished.WithLabelValues("ERROR")), 0)
}
