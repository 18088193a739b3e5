package crawl

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

const (
	defaultRetryBase = 500 * time.Millisecond
	defaultRetryMax  = 30 * time.Second
)

// backoff yields jittered exponential delays for the page retry loop. There
// is no attempt cap: a page is retried until it succeeds or the run is
// cancelled.
type backoff struct {
	base time.Duration
	max  time.Duration
}

func newBackoff(base, maxDelay time.Duration) backoff {
	if base <= 0 {
		base = defaultRetryBase
	}
	if maxDelay < base {
		maxDelay = max(defaultRetryMax, base)
	}
	return backoff{base: base, max: maxDelay}
}

// Delay returns the pause before retry number attempt (1-based). The result
// lies in [d/2, d) where d is base*2^(attempt-1) capped at max.
func (b backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.base) * math.Pow(2, float64(attempt-1))
	if delay > float64(b.max) {
		delay = float64(b.max)
	}
	half := time.Duration(delay / 2)
	return half + jitter(half)
}

func jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// sleep waits for d or until ctx is done, reporting whether the full pause
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
