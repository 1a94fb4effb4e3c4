package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/recon-cli/internal/config"
	"github.com/sells-group/recon-cli/internal/resilience"
)

// Guard wraps an Oracle with a rate limit, a per-call timeout, retries and
// a circuit breaker. Every call is bounded by the timeout, so a hung oracle
// never blocks a run.
type Guard struct {
	next    Oracle
	limiter *rate.Limiter
	timeout time.Duration
	backoff resilience.Backoff
	breaker *resilience.Breaker
}

// NewGuard wraps next according to cfg.
func NewGuard(next Oracle, cfg config.OracleConfig) *Guard {
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	b := resilience.NewBackoff(cfg.MaxAttempts,
		time.Duration(cfg.BackoffMs)*time.Millisecond,
		time.Duration(cfg.MaxBackoffMs)*time.Millisecond,
	)
	b.Retryable = func(err error) bool {
		return errors.Is(err, ErrTimeout) || resilience.IsTransient(err)
	}
	b.OnRetry = resilience.LogRetry("oracle")

	return &Guard{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		timeout: timeout,
		backoff: b,
		breaker: resilience.NewBreaker("oracle", cfg.BreakerThreshold,
			time.Duration(cfg.BreakerCooldownSecs)*time.Second),
	}
}

// Unwrap returns the guarded oracle.
func (g *Guard) Unwrap() Oracle { return g.next }

// Compare implements Oracle.
func (g *Guard) Compare(ctx context.Context, presentation, source Subject) (Verdict, error) {
	return guarded(ctx, g, func(ctx context.Context) (Verdict, error) {
		return g.next.Compare(ctx, presentation, source)
	})
}

// CompareBatch implements Oracle.
func (g *Guard) CompareBatch(ctx context.Context, presentation, sources []Subject) ([]Match, error) {
	return guarded(ctx, g, func(ctx context.Context) ([]Match, error) {
		return g.next.CompareBatch(ctx, presentation, sources)
	})
}

// Score implements Scorer when the wrapped oracle does.
func (g *Guard) Score(ctx context.Context, presentation Subject, sources []Subject) ([]float64, error) {
	sc := AsScorer(g.next)
	if sc == nil {
		return nil, eris.Wrap(ErrUnavailable, "oracle cannot score")
	}
	return guarded(ctx, g, func(ctx context.Context) ([]float64, error) {
		return sc.Score(ctx, presentation, sources)
	})
}

func guarded[T any](ctx context.Context, g *Guard, fn func(context.Context) (T, error)) (T, error) {
	v, err := resilience.Call(ctx, g.breaker, func(ctx context.Context) (T, error) {
		return resilience.Retry(ctx, g.backoff, func(ctx context.Context) (T, error) {
			var zero T
			if err := g.limiter.Wait(ctx); err != nil {
				return zero, eris.Wrap(err, "oracle: rate limit wait")
			}
			callCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()

			v, err := fn(callCtx)
			if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return zero, eris.Wrapf(ErrTimeout, "no reply within %s", g.timeout)
			}
			return v, err
		})
	})
	if errors.Is(err, resilience.ErrOpen) {
		var zero T
		return zero, eris.Wrap(ErrUnavailable, "circuit open")
	}
	return v, err
}
