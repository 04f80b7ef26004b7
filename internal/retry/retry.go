package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nao1215/placerank/internal/pacing"
)

// Backoff returns the wait before retry n (0 for the first retry).
type Backoff func(n int) time.Duration

// Exponential returns base*factor^n, capped at limit.
// Exponential(2s, 1.5, 8s) yields 2s, 3s, 4.5s, 6.75s, 8s, 8s...
func Exponential(base time.Duration, factor float64, limit time.Duration) Backoff {
	return func(n int) time.Duration {
		d := float64(base) * math.Pow(factor, float64(n))
		if limit > 0 && d > float64(limit) {
			return limit
		}
		return time.Duration(d)
	}
}

// Constant waits d before every retry.
func Constant(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

type settings struct {
	sleep   pacing.SleepFunc
	retryIf func(error) bool
	onRetry func(n int, err error, wait time.Duration)
}

// Option configures Attempt.
type Option func(*settings)

// WithSleep replaces the wait between attempts.
func WithSleep(fn pacing.SleepFunc) Option {
	return func(s *settings) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// WithRetryIf limits retries to errors the predicate accepts. Other errors
// are returned immediately.
func WithRetryIf(fn func(error) bool) Option {
	return func(s *settings) {
		s.retryIf = fn
	}
}

// WithOnRetry is called before each wait, typically to log.
func WithOnRetry(fn func(n int, err error, wait time.Duration)) Option {
	return func(s *settings) {
		s.onRetry = fn
	}
}

// Attempt runs task up to maxRetries+1 times, waiting backoff(n) before
// retry n. It returns the first success, or the last error once retries are
// exhausted. Cancellation of ctx during a wait ends the loop with the
// context error wrapping the last task error.
func Attempt[T any](ctx context.Context, task func(context.Context) (T, error), maxRetries int, backoff Backoff, opts ...Option) (T, error) {
	s := settings{sleep: pacing.Sleep}
	for _, opt := range opts {
		opt(&s)
	}
	if backoff == nil {
		backoff = Constant(0)
	}

	var (
		zero    T
		lastErr error
	)
	for n := 0; ; n++ {
		v, err := task(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if n >= maxRetries || (s.retryIf != nil && !s.retryIf(err)) {
			return zero, lastErr
		}

		wait := backoff(n)
		if s.onRetry != nil {
			s.onRetry(n+1, err, wait)
		}
		if err := s.sleep(ctx, wait); err != nil {
			return zero, fmt.Errorf("%w: retry abandoned after %d attempts: %w", err, n+1, lastErr)
		}
	}
}
