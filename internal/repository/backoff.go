package repository

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy controls how failed MINE requests are retried. The first
// ShortAttempts retries wait ShortDelay, later ones LongDelay.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts per request.
	MaxAttempts int

	ShortDelay    time.Duration
	LongDelay     time.Duration
	ShortAttempts int

	// NotifyEvery logs a warning every n-th failed attempt.
	NotifyEvery int
}

// DefaultRetryPolicy returns the default retry schedule: up to 36 attempts,
// 10 seconds apart for the first 12 retries and 30 seconds apart after that.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   36,
		ShortDelay:    10 * time.Second,
		LongDelay:     30 * time.Second,
		ShortAttempts: 12,
		NotifyEvery:   5,
	}
}

// steppedBackOff waits short for the first shortAttempts retries, then long.
type steppedBackOff struct {
	short, long   time.Duration
	shortAttempts int
	n             int
}

var _ backoff.BackOff = (*steppedBackOff)(nil)

func (b *steppedBackOff) NextBackOff() time.Duration {
	b.n++
	if b.n <= b.shortAttempts {
		return b.short
	}
	return b.long
}

func (b *steppedBackOff) Reset() {
	b.n = 0
}

// newBackOff returns a fresh schedule for one request.
func (p RetryPolicy) newBackOff() backoff.BackOff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithMaxRetries(&steppedBackOff{
		short:         p.ShortDelay,
		long:          p.LongDelay,
		shortAttempts: p.ShortAttempts,
	}, uint64(attempts-1))
}
