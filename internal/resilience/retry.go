// Package resilience guards calls to the equivalence oracle with retries
// and a circuit breaker.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff describes how a failed call is retried.
type Backoff struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	// Jitter is the fraction of each delay randomized in either direction.
	Jitter float64

	// Retryable decides whether err is worth another try. Defaults to
	// IsTransient.
	Retryable func(err error) bool
	// OnRetry runs before each sleep.
	OnRetry func(attempt int, err error)
}

// DefaultBackoff matches the oracle's original retry budget of three tries.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts: 3,
		Initial:  500 * time.Millisecond,
		Max:      10 * time.Second,
		Jitter:   0.25,
	}
}

// NewBackoff builds a Backoff from configuration values, keeping defaults
// for anything non-positive.
func NewBackoff(attempts int, initial, maxDelay time.Duration) Backoff {
	b := DefaultBackoff()
	if attempts > 0 {
		b.Attempts = attempts
	}
	if initial > 0 {
		b.Initial = initial
	}
	if maxDelay > 0 {
		b.Max = maxDelay
	}
	return b
}

// Retry calls fn until it succeeds, returns a non-retryable error, runs out
// of attempts or ctx is done. The last error is returned.
func Retry[T any](ctx context.Context, b Backoff, fn func(ctx context.Context) (T, error)) (T, error) {
	if b.Attempts <= 0 {
		b.Attempts = 1
	}
	retryable := b.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var (
		zero T
		err  error
	)
	for attempt := 1; attempt <= b.Attempts; attempt++ {
		var v T
		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !retryable(err) || attempt == b.Attempts {
			return zero, err
		}
		if b.OnRetry != nil {
			b.OnRetry(attempt, err)
		}

		timer := time.NewTimer(b.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
	return zero, err
}

// delay doubles from Initial per attempt, capped at Max, then jittered.
func (b Backoff) delay(attempt int) time.Duration {
	d := float64(b.Initial) * math.Pow(2, float64(attempt-1))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	return time.Duration(math.Max(d, 0))
}

// LogRetry returns an OnRetry hook that logs through zap.
func LogRetry(operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("resilience: retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
