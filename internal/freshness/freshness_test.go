package freshness

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/nao1215/placerank/internal/model"
)

func seoul(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("failed to load Asia/Seoul: %v", err)
	}
	return loc
}

func TestCycleStart(t *testing.T) {
	t.Parallel()

	loc := seoul(t)
	at := func(day, hour, minute int) time.Time {
		return time.Date(2024, 3, day, hour, minute, 0, 0, loc)
	}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{name: "before cutoff belongs to yesterday", now: at(10, 13, 59), want: at(9, 14, 0)},
		{name: "at cutoff starts today", now: at(10, 14, 0), want: at(10, 14, 0)},
		{name: "after cutoff belongs to today", now: at(10, 14, 1), want: at(10, 14, 0)},
		{name: "just after midnight", now: at(10, 0, 5), want: at(9, 14, 0)},
		{name: "late evening", now: at(10, 23, 59), want: at(10, 14, 0)},
		{name: "month boundary", now: time.Date(2024, 3, 1, 9, 0, 0, 0, loc), want: time.Date(2024, 2, 29, 14, 0, 0, 0, loc)},
		{name: "utc input is converted", now: time.Date(2024, 3, 10, 5, 30, 0, 0, time.UTC), want: at(10, 14, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := CycleStart(tt.now, loc, 14)
			if !got.Equal(tt.want) {
				t.Errorf("CycleStart(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestTracker_NeedsBasicCrawl(t *testing.T) {
	t.Parallel()

	loc := seoul(t)
	at := func(day, hour, minute int) *time.Time {
		v := time.Date(2024, 3, day, hour, minute, 0, 0, loc)
		return &v
	}

	tests := []struct {
		name string
		now  time.Time
		last *time.Time
		want bool
	}{
		{name: "never crawled", now: *at(10, 15, 0), last: nil, want: true},
		{name: "crawled before cutoff, now after", now: *at(10, 14, 1), last: at(10, 13, 59), want: true},
		{name: "crawled after cutoff, now later same day", now: *at(10, 20, 0), last: at(10, 14, 1), want: false},
		{name: "crawled yesterday after cutoff, now before cutoff", now: *at(11, 13, 59), last: at(10, 14, 1), want: false},
		{name: "crawled yesterday after cutoff, now after cutoff", now: *at(11, 14, 0), last: at(10, 14, 1), want: true},
		{name: "crawled yesterday before cutoff, now before cutoff", now: *at(11, 13, 59), last: at(10, 13, 0), want: true},
		{name: "crawled today after cutoff, now just after cutoff", now: *at(11, 14, 1), last: at(11, 14, 30), want: false},
		{name: "crawled exactly at cycle start", now: *at(10, 18, 0), last: at(10, 14, 0), want: false},
		{name: "crawled one second before cycle start", now: *at(10, 18, 0), last: func() *time.Time {
			v := time.Date(2024, 3, 10, 13, 59, 59, 0, loc)
			return &v
		}(), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tracker := NewTracker(nil,
				WithLocation(loc),
				WithCutoffHour(14),
				WithClock(func() time.Time { return tt.now }),
			)
			kw := model.Keyword{ID: 1, Text: "pasta", BasicLastCrawledAt: tt.last}
			if got := tracker.NeedsBasicCrawl(kw); got != tt.want {
				t.Errorf("NeedsBasicCrawl() = %v, want %v", got, tt.want)
			}
		})
	}
}

type fakeMarker struct {
	id  int64
	at  time.Time
	err error
}

func (f *fakeMarker) MarkBasicCrawled(_ context.Context, id int64, at time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.id, f.at = id, at
	return nil
}

func TestTracker_MarkBasicCrawled(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

	t.Run("stores current time", func(t *testing.T) {
		t.Parallel()

		m := &fakeMarker{}
		tracker := NewTracker(m, WithClock(func() time.Time { return now }))
		if err := tracker.MarkBasicCrawled(t.Context(), model.Keyword{ID: 7}); err != nil {
			t.Fatalf("MarkBasicCrawled() error = %v", err)
		}
		if m.id != 7 || !m.at.Equal(now) {
			t.Errorf("marker got (%d, %v)", m.id, m.at)
		}
	})

	t.Run("wraps store error", func(t *testing.T) {
		t.Parallel()

		storeErr := errors.New("disk full")
		tracker := NewTracker(&fakeMarker{err: storeErr})
		if err := tracker.MarkBasicCrawled(t.Context(), model.Keyword{ID: 7}); !errors.Is(err, storeErr) {
			t.Errorf("expected wrapped store error, got %v", err)
		}
	})

	t.Run("read only tracker", func(t *testing.T) {
		t.Parallel()

		tracker := NewTracker(nil)
		if err := tracker.MarkBasicCrawled(t.Context(), model.Keyword{ID: 7}); !errors.Is(err, ErrNoMarker) {
			t.Errorf("expected ErrNoMarker, got %v", err)
		}
	})
}

func TestNewTracker_Defaults(t *testing.T) {
	t.Parallel()

	loc := seoul(t)
	// 04:59 UTC is 13:59 in Seoul, one minute before the cycle turns.
	now := time.Date(2024, 3, 10, 4, 59, 0, 0, time.UTC)
	tracker := NewTracker(nil, WithClock(func() time.Time { return now }))

	want := time.Date(2024, 3, 9, 14, 0, 0, 0, loc)
	if got := tracker.CycleStart(); !got.Equal(want) {
		t.Errorf("CycleStart() = %v, want %v", got, want)
	}
	if got := tracker.CycleStart().Location().String(); got != DefaultTimezone {
		t.Errorf("cycle zone = %s, want %s", got, DefaultTimezone)
	}

	now = now.Add(time.Minute)
	want = time.Date(2024, 3, 10, 14, 0, 0, 0, loc)
	if got := tracker.CycleStart(); !got.Equal(want) {
		t.Errorf("CycleStart() at 14:00 Seoul = %v, want %v", got, want)
	}
}

func TestTracker_PreviousCycleStart(t *testing.T) {
	t.Parallel()

	loc := seoul(t)
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, loc)
	tracker := NewTracker(nil, WithLocation(loc), WithClock(func() time.Time { return now }))

	want := time.Date(2024, 3, 8, 14, 0, 0, 0, loc)
	if got := tracker.PreviousCycleStart(); !got.Equal(want) {
		t.Errorf("PreviousCycleStart() = %v, want %v", got, want)
	}
}
