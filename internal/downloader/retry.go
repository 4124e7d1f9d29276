package downloader

import (
	"context"
	"time"
)

// Backoff describes an exponential retry schedule.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	Factor   float64

	// Retryable decides whether an error is worth another attempt. Nil
	// retries everything.
	Retryable func(error) bool
	// OnRetry is called before sleeping with the attempt that just failed
	// (1-based) and the delay that follows.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// backoffFor builds the download schedule from configured delays.
func backoffFor(initial, max time.Duration) Backoff {
	if initial <= 0 {
		initial = 5 * time.Second
	}
	if max < initial {
		max = initial
	}
	return Backoff{Attempts: 3, Initial: initial, Max: max, Factor: 2}
}

// delay returns the wait after the given failed attempt (1-based).
func (b Backoff) delay(attempt int) time.Duration {
	d := b.Initial
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * b.Factor)
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	return d
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// attempts run out. The last error is returned; ctx cancellation during a
// wait returns ctx.Err().
func Retry[T any](ctx context.Context, b Backoff, fn func() (T, error)) (T, error) {
	var zero T
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; ; attempt++ {
		var res T
		if res, err = fn(); err == nil {
			return res, nil
		}
		if attempt >= attempts || (b.Retryable != nil && !b.Retryable(err)) {
			return zero, err
		}

		wait := b.delay(attempt)
		if b.OnRetry != nil {
			b.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
