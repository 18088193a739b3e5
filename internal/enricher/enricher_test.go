package enricher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/thread-harvester/internal/harvest"
)

type fakeSource struct {
	mu       sync.Mutex
	comments map[string][]harvest.Comment
	errs     map[string]error
	calls    []string
	onCall   func(id string)
}

func (f *fakeSource) Comments(ctx context.Context, id string) ([]harvest.Comment, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	hook := f.onCall
	f.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("detached context cancelled: %w", ctx.Err())
	}
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	return f.comments[id], nil
}

func drafts(ids ...string) []harvest.Draft {
	out := make([]harvest.Draft, 0, len(ids))
	for i, id := range ids {
		out = append(out, harvest.Draft{ID: id, Subject: "golang", Title: "t" + id, CreatedUTC: int64(100 - i)})
	}
	return out
}

func newTestEnricher(t *testing.T, source harvest.DetailSource) *Enricher {
	t.Helper()
	e, err := New(source, Config{Pace: time.Millisecond}, nil)
	require.NoError(t, err)
	return e
}

func TestEnrichToleratesMissingAndFailedItems(t *testing.T) {
	t.Parallel()

	source := &fakeSource{
		comments: map[string][]harvest.Comment{
			"a": {{Author: "alice", Body: "hi"}},
		},
		errs: map[string]error{
			"b": fmt.Errorf("lookup b: %w", harvest.ErrNotFound),
			"c": &harvest.TransportError{Op: "fetch comments", StatusCode: 503, Err: errors.New("busy")},
		},
	}
	e := newTestEnricher(t, source)

	result := e.Enrich(context.Background(), drafts("a", "b", "c", "d"))

	require.False(t, result.Interrupted)
	require.Len(t, result.Records, 4)
	assert.Equal(t, []string{"a", "b", "c", "d"}, []string{
		result.Records[0].ID, result.Records[1].ID, result.Records[2].ID, result.Records[3].ID,
	})
	assert.Equal(t, []harvest.Annotation{{Author: "alice", Body: "hi"}}, result.Records[0].Annotations)
	for _, rec := range result.Records[1:] {
		assert.NotNil(t, rec.Annotations)
		assert.Empty(t, rec.Annotations)
	}
	require.Len(t, result.Misses, 2)
	assert.Equal(t, Miss{ID: "b", Kind: NotFound}, result.Misses[0])
	assert.Equal(t, "c", result.Misses[1].ID)
	assert.Equal(t, Failed, result.Misses[1].Kind)
	assert.Error(t, result.Misses[1].Err)
}

func TestEnrichEmptyBatch(t *testing.T) {
	t.Parallel()

	result := newTestEnricher(t, &fakeSource{}).Enrich(context.Background(), nil)
	require.Empty(t, result.Records)
	require.False(t, result.Interrupted)
}

func TestEnrichStopsAtCancellationKeepingPrefix(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := &fakeSource{
		comments: map[string][]harvest.Comment{"b": {{Author: "bob", Body: "late"}}},
	}
	source.onCall = func(id string) {
		if id == "b" {
			cancel()
		}
	}
	e := newTestEnricher(t, source)

	result := e.Enrich(ctx, drafts("a", "b", "c"))

	require.True(t, result.Interrupted)
	require.Len(t, result.Records, 2, "in-flight lookup finishes before cancellation is observed")
	assert.Equal(t, []harvest.Annotation{{Author: "bob", Body: "late"}}, result.Records[1].Annotations)
	assert.Equal(t, []string{"a", "b"}, source.calls)
}

func TestEnrichPacesRequests(t *testing.T) {
	t.Parallel()

	e, err := New(&fakeSource{}, Config{Pace: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	start := time.Now()
	result := e.Enrich(context.Background(), drafts("a", "b", "c"))
	require.Len(t, result.Records, 3)
	require.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestSelectAnnotations(t *testing.T) {
	t.Parallel()

	comments := []harvest.Comment{
		{Author: "a1", Body: "one"},
		{Author: "", Body: "two"},
		{Author: "a3", Body: harvest.DeletedMarker},
		{Author: harvest.DeletedMarker, Body: "four"},
		{Author: "a5", Body: "five"},
		{Author: "a6", Body: "six"},
		{Author: "a7", Body: "seven"},
	}

	got := SelectAnnotations(comments)

	require.Equal(t, []harvest.Annotation{
		{Author: "a1", Body: "one"},
		{Author: harvest.DeletedMarker, Body: "two"},
		{Author: harvest.DeletedMarker, Body: "four"},
		{Author: "a5", Body: "five"},
		{Author: "a6", Body: "six"},
	}, got)
	require.NotNil(t, SelectAnnotations(nil))
}

func TestNewRequiresSource(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{}, nil)
	require.Error(t, err)
	require.Equal(t, "not_found", NotFound.String())
}
