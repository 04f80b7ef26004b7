package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/placerank/internal/database"
	"github.com/nao1215/placerank/internal/freshness"
	"github.com/nao1215/placerank/internal/model"
	"github.com/nao1215/placerank/internal/queue"
)

// CycleSource returns the start of the freshness cycle containing a time.
// freshness.Tracker implements it.
type CycleSource interface {
	CycleStartAt(at time.Time) time.Time
}

var _ CycleSource = (*freshness.Tracker)(nil)

// Summary describes what one Persist call wrote.
type Summary struct {
	KeywordID  int64     `json:"keyword_id"`
	CrawledAt  time.Time `json:"crawled_at"`
	CycleStart time.Time `json:"cycle_start"`
	Rows       int       `json:"rows"`
	Places     int       `json:"places"`
	Created    int       `json:"placeholders_created"`
	Updated    int       `json:"placeholders_updated"`
	Unchanged  int       `json:"placeholders_unchanged"`
	Enqueued   int       `json:"detail_jobs_enqueued"`
	EnqueueErr int       `json:"detail_jobs_failed"`
}

// Persister stores crawl runs.
type Persister struct {
	store          database.RunStore
	cycles         CycleSource
	enqueuer       queue.Enqueuer
	detailPriority int
	logger         *slog.Logger
}

// Option configures a Persister.
type Option func(*Persister)

// WithEnqueuer sets where detail jobs go. Without it no jobs are enqueued.
func WithEnqueuer(e queue.Enqueuer) Option {
	return func(p *Persister) {
		p.enqueuer = e
	}
}

// WithDetailPriority sets the priority of enqueued detail jobs.
func WithDetailPriority(priority int) Option {
	return func(p *Persister) {
		p.detailPriority = priority
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Persister) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPersister creates a Persister.
func NewPersister(store database.RunStore, cycles CycleSource, opts ...Option) *Persister {
	p := &Persister{
		store:  store,
		cycles: cycles,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Persist stores items as the run of kw at now. Items must already carry
// contiguous ranks. An empty item list commits only the freshness marker.
// On any database error nothing is written and the error is returned.
func (p *Persister) Persist(ctx context.Context, kw model.Keyword, items []model.ListingItem, now time.Time) (Summary, error) {
	sum := Summary{
		KeywordID:  kw.ID,
		CrawledAt:  now,
		CycleStart: p.cycles.CycleStartAt(now),
		Rows:       len(items),
	}

	rows := make([]model.RankRow, 0, len(items))
	for _, it := range items {
		rows = append(rows, model.RankRow{
			KeywordID: kw.ID,
			Rank:      it.Rank,
			PlaceID:   it.PlaceID,
			PlaceName: it.Name,
			Category:  it.Category,
			CrawledAt: now,
		})
	}
	places := distinctPlaces(items)
	sum.Places = len(places)

	err := p.store.WithinTx(ctx, func(ctx context.Context, w database.RunWriter) error {
		if len(rows) > 0 {
			if err := w.InsertRankRows(ctx, rows); err != nil {
				return err
			}
		}
		for _, it := range places {
			res, err := w.UpsertPlaceholder(ctx, model.PlaceDetailPlaceholder{
				PlaceID:    it.PlaceID,
				SavedCount: it.SavedCount,
				CycleStart: sum.CycleStart,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
			if err != nil {
				return err
			}
			switch res {
			case database.Created:
				sum.Created++
			case database.Updated:
				sum.Updated++
			default:
				sum.Unchanged++
			}
		}
		return w.MarkBasicCrawled(ctx, kw.ID, now)
	})
	if err != nil {
		return Summary{KeywordID: kw.ID, CrawledAt: now, CycleStart: sum.CycleStart},
			fmt.Errorf("failed to persist run of keyword %d: %w", kw.ID, err)
	}

	p.logger.Info("ranking persisted",
		"keyword_id", kw.ID,
		"rows", sum.Rows,
		"places", sum.Places,
		"created", sum.Created,
		"updated", sum.Updated,
	)

	p.enqueueDetails(ctx, places, &sum)
	return sum, nil
}

func (p *Persister) enqueueDetails(ctx context.Context, places []model.ListingItem, sum *Summary) {
	if p.enqueuer == nil {
		return
	}
	for _, it := range places {
		if err := p.enqueuer.Enqueue(ctx, queue.NewDetailJob(it.PlaceID, p.detailPriority)); err != nil {
			sum.EnqueueErr++
			p.logger.Warn("failed to enqueue detail job", "place_id", it.PlaceID, "error", err)
			continue
		}
		sum.Enqueued++
	}
}

// distinctPlaces keeps the first item of every place id, in rank order.
func distinctPlaces(items []model.ListingItem) []model.ListingItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]model.ListingItem, 0, len(items))
	for _, it := range items {
		if _, dup := seen[it.PlaceID]; dup {
			continue
		}
		seen[it.PlaceID] = struct{}{}
		out = append(out, it)
	}
	return out
}
