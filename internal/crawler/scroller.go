package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/placerank/internal/model"
)

// Page is the part of a browser session the scroller drives.
type Page interface {
	ScrollToBottom(ctx context.Context) error
	CountItems(ctx context.Context) (model.Counts, error)
}

// Delayer waits a random duration between lo and hi.
type Delayer interface {
	Delay(ctx context.Context, lo, hi time.Duration) error
}

// Outcome describes how a scroll run ended.
type Outcome struct {
	Reason     Reason       `json:"reason"`
	Final      model.Counts `json:"final"`
	Iterations int          `json:"iterations"`
}

// Scroller loads an infinite list until a rule says stop.
type Scroller struct {
	delayer  Delayer
	rules    []Rule
	settleLo time.Duration
	settleHi time.Duration
	logger   *slog.Logger
}

// ScrollerOption configures a Scroller.
type ScrollerOption func(*Scroller)

// WithRules replaces the termination rules. They are evaluated in order and
// the first one that fires wins.
func WithRules(rules ...Rule) ScrollerOption {
	return func(s *Scroller) {
		if len(rules) > 0 {
			s.rules = rules
		}
	}
}

// WithSettleDelay sets the wait between the two counts of an attempt.
func WithSettleDelay(lo, hi time.Duration) ScrollerOption {
	return func(s *Scroller) {
		s.settleLo, s.settleHi = lo, hi
	}
}

// WithScrollerLogger sets the logger.
func WithScrollerLogger(logger *slog.Logger) ScrollerOption {
	return func(s *Scroller) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScroller creates a Scroller with the default rules and a 1-1.3s
// settle delay.
func NewScroller(delayer Delayer, opts ...ScrollerOption) *Scroller {
	s := &Scroller{
		delayer: delayer,
		rules: DefaultRules(RuleConfig{
			MaxItems:              300,
			PlateauBatchSize:      100,
			PlateauRemainderLimit: 90,
			PlateauMinItems:       20,
			MaxStagnantChecks:     5,
			MaxScrollIterations:   30,
		}),
		settleLo: 1000 * time.Millisecond,
		settleHi: 1300 * time.Millisecond,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run scrolls page until a rule fires. Every attempt scrolls, counts,
// waits for the list to settle and counts again. An error from the page or
// the context aborts the run.
func (s *Scroller) Run(ctx context.Context, page Page) (Outcome, error) {
	var (
		previous model.Counts
		settled  model.Counts
		stagnant int
	)

	for iteration := 1; ; iteration++ {
		if err := page.ScrollToBottom(ctx); err != nil {
			return Outcome{}, fmt.Errorf("scroll attempt %d: %w", iteration, err)
		}
		before, err := page.CountItems(ctx)
		if err != nil {
			return Outcome{}, fmt.Errorf("count attempt %d: %w", iteration, err)
		}
		if err := s.delayer.Delay(ctx, s.settleLo, s.settleHi); err != nil {
			return Outcome{}, err
		}
		after, err := page.CountItems(ctx)
		if err != nil {
			return Outcome{}, fmt.Errorf("recount attempt %d: %w", iteration, err)
		}

		obs := Observation{
			Iteration: iteration,
			Before:    before,
			After:     after,
			Previous:  previous,
			Settled:   settled,
		}
		if after.Total > previous.Total || after.Organic > previous.Organic {
			previous = after
			stagnant = 0
		} else {
			stagnant++
		}
		obs.Stagnant = stagnant
		if obs.settled() {
			settled = after
		}

		s.logger.Debug("scroll attempt",
			"iteration", iteration,
			"total", after.Total,
			"organic", after.Organic,
			"stagnant", stagnant)

		for _, rule := range s.rules {
			if rule.Stop(obs) {
				out := Outcome{Reason: rule.Reason(), Final: after, Iterations: iteration}
				s.logger.Info("scroll finished",
					"reason", string(out.Reason),
					"iterations", iteration,
					"total", after.Total,
					"organic", after.Organic)
				return out, nil
			}
		}
	}
}
