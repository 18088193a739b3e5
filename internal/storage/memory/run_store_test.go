package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/thread-harvester/internal/store"
)

func TestRunStoreLifecycle(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	ctx := context.Background()
	id := uuid.New()
	start := time.Unix(1700000000, 0).UTC()

	require.NoError(t, s.StartRun(ctx, id, "golang", start, 5))
	require.NoError(t, s.RecordPages(ctx, id, 1, 3, 8))
	require.NoError(t, s.RecordPages(ctx, id, 1, 2, 10))
	require.NoError(t, s.FinishRun(ctx, id, start.Add(time.Minute), store.RunCompleted, "EXHAUSTED", nil))

	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(2), run.Pages)
	require.Equal(t, int64(5), run.Records)
	require.Equal(t, int64(10), run.Total)
	require.Equal(t, store.RunCompleted, run.Status)
	require.Equal(t, "EXHAUSTED", run.State)
	require.NotNil(t, run.FinishedAt)

	_, err = s.GetRun(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.RecordPages(ctx, uuid.New(), 1, 1, 1), store.ErrNotFound)
}

func TestRunStoreListNewestFirst(t *testing.T) {
	t.Parallel()

	s := NewRunStore()
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()
	older, newer, other := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, s.StartRun(ctx, older, "golang", base, 0))
	require.NoError(t, s.StartRun(ctx, newer, "golang", base.Add(time.Hour), 0))
	require.NoError(t, s.StartRun(ctx, other, "rust", base.Add(2*time.Hour), 0))

	runs, err := s.ListRuns(ctx, "golang", 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, newer, runs[0].ID)
	require.Equal(t, older, runs[1].ID)

	all, err := s.ListRuns(ctx, "", 1, 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, newer, all[0].ID)

	none, err := s.ListRuns(ctx, "", 10, 5)
	require.NoError(t, err)
	require.Empty(t, none)
}
