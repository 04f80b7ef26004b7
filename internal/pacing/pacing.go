package pacing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Pacer draws uniform random delays from a shared source.
type Pacer struct {
	mu     sync.Mutex
	rnd    *rand.Rand
	sleep  SleepFunc
	logger *slog.Logger
}

// Option configures a Pacer.
type Option func(*Pacer)

// WithRand sets the random source.
func WithRand(rnd *rand.Rand) Option {
	return func(p *Pacer) {
		if rnd != nil {
			p.rnd = rnd
		}
	}
}

// WithSleep replaces the wait, so tests can record delays instead of sleeping.
func WithSleep(fn SleepFunc) Option {
	return func(p *Pacer) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pacer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Pacer.
func New(opts ...Option) *Pacer {
	p := &Pacer{
		rnd:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // timing noise only
		sleep:  Sleep,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Duration draws a duration uniformly from [lo, hi]. Swapped bounds are
// reordered; equal bounds return lo.
func (p *Pacer) Duration(lo, hi time.Duration) time.Duration {
	if hi < lo {
		lo, hi = hi, lo
	}
	if hi == lo {
		return lo
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo + time.Duration(p.rnd.Int64N(int64(hi-lo)+1))
}

// Delay waits a uniform random duration in [lo, hi]. It returns the
// context error if ctx ends first.
func (p *Pacer) Delay(ctx context.Context, lo, hi time.Duration) error {
	d := p.Duration(lo, hi)
	p.logger.Debug("pacing delay", "duration", d)
	return p.sleep(ctx, d)
}
