package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/placerank/internal/browser"
	"github.com/nao1215/placerank/internal/config"
	"github.com/nao1215/placerank/internal/crawler"
	"github.com/nao1215/placerank/internal/database"
	"github.com/nao1215/placerank/internal/freshness"
	"github.com/nao1215/placerank/internal/ranking"
)

// SettingsFunc returns the effective settings of a keyword.
// config.Config.ForKeyword is one.
type SettingsFunc func(text string) config.KeywordSettings

// ResolveKeywordStep loads the keyword of the request, creating it on
// first reference.
type ResolveKeywordStep struct {
	store    database.KeywordStore
	settings SettingsFunc
}

// NewResolveKeywordStep creates the step. settings may be nil.
func NewResolveKeywordStep(store database.KeywordStore, settings SettingsFunc) *ResolveKeywordStep {
	return &ResolveKeywordStep{store: store, settings: settings}
}

// Name returns the step name.
func (s *ResolveKeywordStep) Name() string {
	return "resolve_keyword"
}

// Do fills run.Keyword.
func (s *ResolveKeywordStep) Do(ctx context.Context, run *Run) error {
	req := run.Request
	if req.KeywordID != 0 {
		kw, err := s.store.GetKeyword(ctx, req.KeywordID)
		if err != nil {
			return err
		}
		run.Keyword = kw
		return nil
	}
	if req.Keyword == "" {
		return ErrNoKeyword
	}

	restaurant := req.Restaurant
	if restaurant == nil && s.settings != nil {
		restaurant = s.settings(req.Keyword).Restaurant
	}
	kw, err := s.store.EnsureKeyword(ctx, req.Keyword, restaurant)
	if err != nil {
		return err
	}
	run.Keyword = kw
	return nil
}

// FreshnessStep skips keywords already crawled in the current cycle,
// unless the request forces a crawl.
type FreshnessStep struct {
	tracker *freshness.Tracker
}

// NewFreshnessStep creates the step.
func NewFreshnessStep(tracker *freshness.Tracker) *FreshnessStep {
	return &FreshnessStep{tracker: tracker}
}

// Name returns the step name.
func (s *FreshnessStep) Name() string {
	return "freshness"
}

// Do returns ErrSkip for fresh keywords.
func (s *FreshnessStep) Do(_ context.Context, run *Run) error {
	if run.Request.Force || s.tracker.NeedsBasicCrawl(run.Keyword) {
		return nil
	}
	run.SkipReason = fmt.Sprintf("crawled at %s, cycle started at %s",
		run.Keyword.BasicLastCrawledAt.Format(time.RFC3339),
		s.tracker.CycleStart().Format(time.RFC3339))
	return ErrSkip
}

// Page is a browser tab that can be scrolled and captured.
type Page interface {
	crawler.Page
	Snapshot(ctx context.Context) (browser.Snapshot, error)
}

// Browser opens a page on a target, runs fn and releases the page on
// every exit path.
type Browser interface {
	With(ctx context.Context, t browser.Target, fn func(Page) error) error
}

// FromManager adapts a browser.Manager to Browser.
func FromManager(m *browser.Manager) Browser {
	return managerBrowser{m: m}
}

type managerBrowser struct {
	m *browser.Manager
}

func (b managerBrowser) With(ctx context.Context, t browser.Target, fn func(Page) error) error {
	return b.m.With(ctx, t, func(s *browser.Session) error {
		return fn(s)
	})
}

// CrawlStep opens the result list, scrolls it until a termination rule
// fires and extracts the organic rows.
type CrawlStep struct {
	browser  Browser
	delayer  crawler.Delayer
	rules    crawler.RuleConfig
	settleLo time.Duration
	settleHi time.Duration
	fields   crawler.Fields
	settings SettingsFunc
	logger   *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithRuleConfig sets the termination thresholds.
func WithRuleConfig(c crawler.RuleConfig) CrawlStepOption {
	return func(s *CrawlStep) {
		s.rules = c
	}
}

// WithSettle sets the settle delay range of every scroll attempt.
func WithSettle(lo, hi time.Duration) CrawlStepOption {
	return func(s *CrawlStep) {
		s.settleLo, s.settleHi = lo, hi
	}
}

// WithKeywordSettings sets the per-keyword overrides.
func WithKeywordSettings(fn SettingsFunc) CrawlStepOption {
	return func(s *CrawlStep) {
		s.settings = fn
	}
}

// WithCrawlLogger sets the logger.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewCrawlStep creates the step with the default termination rules.
func NewCrawlStep(b Browser, delayer crawler.Delayer, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		browser: b,
		delayer: delayer,
		rules: crawler.RuleConfig{
			MaxItems:              config.DefaultMaxItems,
			PlateauBatchSize:      config.DefaultPlateauBatchSize,
			PlateauRemainderLimit: config.DefaultPlateauRemainderLimit,
			PlateauMinItems:       config.DefaultPlateauMinItems,
			MaxStagnantChecks:     config.DefaultMaxStagnantChecks,
			MaxScrollIterations:   config.DefaultMaxScrollIterations,
		},
		settleLo: config.DefaultSettleDelayMin,
		settleHi: config.DefaultSettleDelayMax,
		fields:   crawler.DefaultFields,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "browser_crawl"
}

// Do fills run.Outcome, run.Items and run.Dropped.
func (s *CrawlStep) Do(ctx context.Context, run *Run) error {
	rules := s.rules
	target := browser.Target{Keyword: run.Keyword.Text, Route: run.Keyword.Route()}
	if s.settings != nil {
		ks := s.settings(run.Keyword.Text)
		if ks.MaxItems > 0 {
			rules.MaxItems = ks.MaxItems
		}
		target.RadiusM = ks.JitterRadiusMeters
	}

	logger := s.logger.With("keyword", run.Keyword.Text, "keyword_id", run.Keyword.ID)
	scroller := crawler.NewScroller(s.delayer,
		crawler.WithRules(crawler.DefaultRules(rules)...),
		crawler.WithSettleDelay(s.settleLo, s.settleHi),
		crawler.WithScrollerLogger(logger),
	)
	extractor := crawler.NewExtractor(
		crawler.WithFields(s.fields),
		crawler.WithMaxItems(rules.MaxItems),
		crawler.WithExtractorLogger(logger),
	)

	return s.browser.With(ctx, target, func(p Page) error {
		outcome, err := scroller.Run(ctx, p)
		if err != nil {
			return fmt.Errorf("failed to scroll result list: %w", err)
		}
		run.Outcome = outcome

		snap, err := p.Snapshot(ctx)
		if err != nil {
			return err
		}

		items, dropped, err := extractor.Extract(snap.HTML, snap.URL)
		if err != nil {
			return fmt.Errorf("failed to extract result list: %w", err)
		}
		run.Items = items
		run.Dropped = dropped

		logger.Info("result list extracted",
			"items", len(items),
			"dropped", len(dropped),
			"termination", string(outcome.Reason),
			"iterations", outcome.Iterations,
		)
		return nil
	})
}

// PersistStep stores the run.
type PersistStep struct {
	persister *ranking.Persister
	now       func() time.Time
}

// NewPersistStep creates the step. now supplies the crawl timestamp; the
// freshness tracker's clock is the usual choice.
func NewPersistStep(persister *ranking.Persister, now func() time.Time) *PersistStep {
	if now == nil {
		now = time.Now
	}
	return &PersistStep{persister: persister, now: now}
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// Do fills run.Summary.
func (s *PersistStep) Do(ctx context.Context, run *Run) error {
	sum, err := s.persister.Persist(ctx, run.Keyword, run.Items, s.now())
	if err != nil {
		return err
	}
	run.Summary = sum
	return nil
}
