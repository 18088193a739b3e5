package crawl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	t.Parallel()

	b := newBackoff(100*time.Millisecond, time.Second)
	for attempt, ceiling := range map[int]time.Duration{
		1:  100 * time.Millisecond,
		2:  200 * time.Millisecond,
		3:  400 * time.Millisecond,
		10: time.Second,
	} {
		d := b.Delay(attempt)
		require.GreaterOrEqual(t, d, ceiling/2, "attempt %d", attempt)
		require.Less(t, d, ceiling, "attempt %d", attempt)
	}
}

func TestBackoffDefaults(t *testing.T) {
	t.Parallel()

	b := newBackoff(0, 0)
	require.Equal(t, defaultRetryBase, b.base)
	require.Equal(t, defaultRetryMax, b.max)
	require.Positive(t, b.Delay(0))
}

func TestSleepStopsOnCancel(t *testing.T) {
	t.Parallel()

	require.True(t, sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	require.False(t, sleep(ctx, time.Hour))
	require.False(t, sleep(ctx, 0))
	require.Less(t, time.Since(start), time.Second)
}
