package freshness

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata" // default zone must resolve on images without zoneinfo

	"github.com/nao1215/placerank/internal/model"
)

// CycleStart returns the start of the cycle containing now: today at hour
// if now is at or past it, otherwise yesterday at hour. The day boundary
// is taken in loc, and the result is expressed in loc.
func CycleStart(now time.Time, loc *time.Location, hour int) time.Time {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if local.Before(start) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

// Defaults of a Tracker: crawl cycles start at 14:00 Korea time.
const (
	DefaultTimezone   = "Asia/Seoul"
	DefaultCutoffHour = 14
)

// defaultLocation resolves DefaultTimezone. The embedded tzdata makes the
// UTC fallback unreachable in practice.
func defaultLocation() *time.Location {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Marker persists the freshness marker of a keyword.
type Marker interface {
	MarkBasicCrawled(ctx context.Context, keywordID int64, at time.Time) error
}

// Tracker answers freshness questions against an injectable clock.
type Tracker struct {
	marker Marker
	loc    *time.Location
	hour   int
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLocation sets the zone the cycle is anchored in. Defaults to
// DefaultTimezone.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) {
		if loc != nil {
			t.loc = loc
		}
	}
}

// WithCutoffHour sets the hour the cycle starts at. Defaults to 14.
func WithCutoffHour(hour int) Option {
	return func(t *Tracker) {
		t.hour = hour
	}
}

// WithClock replaces time.Now, for tests and replays.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTracker creates a Tracker. marker may be nil for read-only use.
func NewTracker(marker Marker, opts ...Option) *Tracker {
	t := &Tracker{
		marker: marker,
		loc:    defaultLocation(),
		hour:   DefaultCutoffHour,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Now returns the tracker's current time.
func (t *Tracker) Now() time.Time {
	return t.now()
}

// CycleStart returns the start of the current cycle.
func (t *Tracker) CycleStart() time.Time {
	return t.CycleStartAt(t.now())
}

// CycleStartAt returns the start of the cycle containing at.
func (t *Tracker) CycleStartAt(at time.Time) time.Time {
	return CycleStart(at, t.loc, t.hour)
}

// PreviousCycleStart returns the start of the cycle before the current one.
func (t *Tracker) PreviousCycleStart() time.Time {
	return t.CycleStart().AddDate(0, 0, -1)
}

// NeedsBasicCrawl reports whether kw was never crawled or was last
// crawled before the current cycle started.
func (t *Tracker) NeedsBasicCrawl(kw model.Keyword) bool {
	if kw.BasicLastCrawledAt == nil {
		return true
	}
	return kw.BasicLastCrawledAt.Before(t.CycleStart())
}

// MarkBasicCrawled stores the current time as the keyword's last basic
// crawl. Crawl runs set the marker inside their own transaction; this is
// for callers that refresh a keyword without a run.
func (t *Tracker) MarkBasicCrawled(ctx context.Context, kw model.Keyword) error {
	if t.marker == nil {
		return ErrNoMarker
	}
	at := t.now()
	if err := t.marker.MarkBasicCrawled(ctx, kw.ID, at); err != nil {
		return fmt.Errorf("failed to mark keyword %d as crawled: %w", kw.ID, err)
	}
	t.logger.Debug("basic crawl marker updated", "keyword_id", kw.ID, "at", at)
	return nil
}
