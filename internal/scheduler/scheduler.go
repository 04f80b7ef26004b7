package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/placerank/internal/model"
	"github.com/nao1215/placerank/internal/queue"
)

// Store is the data a scheduling pass reads.
type Store interface {
	ListKeywords(ctx context.Context) ([]model.Keyword, error)
	RunSizes(ctx context.Context, keywordID int64, since time.Time) ([]model.RunSize, error)
	IncompletePlaceholders(ctx context.Context, cycleStart time.Time) ([]model.PlaceDetailPlaceholder, error)
}

// Cycles tells the scheduler where the crawl cycles start.
type Cycles interface {
	CycleStart() time.Time
	PreviousCycleStart() time.Time
	NeedsBasicCrawl(kw model.Keyword) bool
}

// Pass counts the jobs one scheduling pass enqueued.
type Pass struct {
	Stale   int `json:"stale"`
	Drops   int `json:"drops"`
	Details int `json:"details"`
}

// Total returns the number of jobs enqueued.
func (p Pass) Total() int {
	return p.Stale + p.Drops + p.Details
}

// Scheduler enqueues crawl jobs.
type Scheduler struct {
	store          Store
	cycles         Cycles
	queue          queue.Enqueuer
	drop           DropRule
	detailPriority int
	logger         *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDropRule replaces DefaultDropRule.
func WithDropRule(r DropRule) Option {
	return func(s *Scheduler) {
		s.drop = r
	}
}

// WithDetailPriority sets the priority of re-enqueued detail jobs.
func WithDetailPriority(p int) Option {
	return func(s *Scheduler) {
		s.detailPriority = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Scheduler.
func New(store Store, cycles Cycles, q queue.Enqueuer, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:  store,
		cycles: cycles,
		queue:  q,
		drop:   DefaultDropRule,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnqueueStale enqueues a basic job for every keyword that needs a crawl
// in the current cycle.
func (s *Scheduler) EnqueueStale(ctx context.Context) (int, error) {
	keywords, err := s.store.ListKeywords(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list keywords: %w", err)
	}

	added := 0
	for _, kw := range keywords {
		if !s.cycles.NeedsBasicCrawl(kw) {
			continue
		}
		if err := s.queue.Enqueue(ctx, queue.NewBasicJob(kw, false)); err != nil {
			return added, fmt.Errorf("failed to enqueue keyword %d: %w", kw.ID, err)
		}
		s.logger.Info("basic job enqueued", "keyword", kw.Text, "keyword_id", kw.ID)
		added++
	}
	return added, nil
}

// EnqueueSignificantDrops enqueues a forced basic job for every keyword
// crawled in this cycle whose latest run is a significant drop from the
// latest run of the previous cycle.
func (s *Scheduler) EnqueueSignificantDrops(ctx context.Context) (int, error) {
	keywords, err := s.store.ListKeywords(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list keywords: %w", err)
	}

	cycleStart := s.cycles.CycleStart()
	since := s.cycles.PreviousCycleStart()

	added := 0
	for _, kw := range keywords {
		if kw.BasicLastCrawledAt == nil || kw.BasicLastCrawledAt.Before(cycleStart) {
			continue
		}

		sizes, err := s.store.RunSizes(ctx, kw.ID, since)
		if err != nil {
			return added, fmt.Errorf("failed to load run sizes of keyword %d: %w", kw.ID, err)
		}
		current, previous, ok := latestPair(sizes, cycleStart)
		if !ok || !s.drop.Significant(previous.Rows, current.Rows) {
			continue
		}

		if err := s.queue.Enqueue(ctx, queue.NewBasicJob(kw, true)); err != nil {
			return added, fmt.Errorf("failed to enqueue keyword %d: %w", kw.ID, err)
		}
		s.logger.Info("recrawl enqueued after significant drop",
			"keyword", kw.Text,
			"keyword_id", kw.ID,
			"previous", previous.Rows,
			"current", current.Rows)
		added++
	}
	return added, nil
}

// latestPair picks the newest run at or after cycleStart and the newest
// run before it from sizes, which are ordered newest first.
func latestPair(sizes []model.RunSize, cycleStart time.Time) (current, previous model.RunSize, ok bool) {
	var haveCurrent bool
	for _, size := range sizes {
		if !size.CrawledAt.Before(cycleStart) {
			if !haveCurrent {
				current, haveCurrent = size, true
			}
			continue
		}
		return current, size, haveCurrent
	}
	return current, previous, false
}

// EnqueueIncompleteDetails enqueues a detail job for every placeholder of
// the current cycle that was not enriched yet.
func (s *Scheduler) EnqueueIncompleteDetails(ctx context.Context) (int, error) {
	placeholders, err := s.store.IncompletePlaceholders(ctx, s.cycles.CycleStart())
	if err != nil {
		return 0, fmt.Errorf("failed to list incomplete placeholders: %w", err)
	}

	added := 0
	for _, p := range placeholders {
		if err := s.queue.Enqueue(ctx, queue.NewDetailJob(p.PlaceID, s.detailPriority)); err != nil {
			return added, fmt.Errorf("failed to enqueue place %s: %w", p.PlaceID, err)
		}
		added++
	}
	if added > 0 {
		s.logger.Info("detail jobs re-enqueued", "count", added)
	}
	return added, nil
}

// Tick runs one full pass. A failing step does not stop the others; their
// errors are joined.
func (s *Scheduler) Tick(ctx context.Context) (Pass, error) {
	var (
		pass Pass
		errs []error
		err  error
	)

	if pass.Stale, err = s.EnqueueStale(ctx); err != nil {
		errs = append(errs, err)
	}
	if pass.Drops, err = s.EnqueueSignificantDrops(ctx); err != nil {
		errs = append(errs, err)
	}
	if pass.Details, err = s.EnqueueIncompleteDetails(ctx); err != nil {
		errs = append(errs, err)
	}

	s.logger.Info("scheduling pass finished",
		"stale", pass.Stale,
		"drops", pass.Drops,
		"details", pass.Details)
	return pass, errors.Join(errs...)
}

// Run ticks immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	s.logger.Info("scheduler started", "interval", interval)

	if _, err := s.Tick(ctx); err != nil {
		s.logger.Error("scheduling pass failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduling pass failed", "error", err)
			}
		}
	}
}
