package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/thread-harvester/internal/progress"
	"github.com/JakeFAU/thread-harvester/internal/storage/memory"
	"github.com/JakeFAU/thread-harvester/internal/store"
)

func TestStoreSinkLifecycle(t *testing.T) {
	t.Parallel()

	repo := memory.NewRunStore()
	sink := NewStoreSink(repo, zap.NewNop())
	id := uuid.New()
	runID := progress.UUIDToBytes(id)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: start, Stage: progress.StageRunStart, Subject: "golang", Total: 10},
		{RunID: runID, TS: start, Stage: progress.StagePageCommitted, Subject: "golang", Records: 20, Total: 30},
		{RunID: runID, TS: start, Stage: progress.StagePageRetry, Subject: "golang", Attempt: 1},
		{RunID: runID, TS: start, Stage: progress.StagePageCommitted, Subject: "golang", Records: 5, Total: 35},
	}))

	run, err := repo.GetRun(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, store.RunRunning, run.Status)
	require.Equal(t, int64(2), run.Pages)
	require.Equal(t, int64(25), run.Records)
	require.Equal(t, int64(35), run.Total)

	end := start.Add(time.Hour)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: end, Stage: progress.StagePageCommitted, Subject: "golang", Records: 1, Total: 36},
		{RunID: runID, TS: end, Stage: progress.StageRunDone, Subject: "golang", State: "CANCELLED", Total: 36},
	}))

	run, err = repo.GetRun(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, store.RunCancelled, run.Status)
	require.Equal(t, "CANCELLED", run.State)
	require.Equal(t, int64(3), run.Pages)
	require.Equal(t, int64(36), run.Total)
	require.NotNil(t, run.FinishedAt)
	require.True(t, run.FinishedAt.Equal(end))
	require.Nil(t, run.ErrorMessage)
}

func TestStoreSinkRunError(t *testing.T) {
	t.Parallel()

	repo := memory.NewRunStore()
	sink := NewStoreSink(repo, nil)
	id := uuid.New()
	runID := progress.UUIDToBytes(id)
	now := time.Now().UTC()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Subject: "golang"},
		{RunID: runID, TS: now, Stage: progress.StageRunError, Subject: "golang", Note: "save checkpoint: disk full"},
	}))

	run, err := repo.GetRun(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, store.RunError, run.Status)
	require.NotNil(t, run.ErrorMessage)
	require.Equal(t, "save checkpoint: disk full", *run.ErrorMessage)
}

func TestStoreSinkPropagatesRepositoryErrors(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(memory.NewRunStore(), nil)
	err := sink.Consume(context.Background(), []progress.Event{{
		RunID:   progress.UUIDToBytes(uuid.New()),
		TS:      time.Now(),
		Stage:   progress.StagePageCommitted,
		Subject: "golang",
		Records: 1,
	}})
	require.Error(t, err)
	require.True(t, errors.Is(err, store.ErrNotFound))
}

func TestStoreSinkNilRepository(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(nil, nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{{Stage: progress.StageRunStart}}))
	require.NoError(t, sink.Close(context.Background()))
}
