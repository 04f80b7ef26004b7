package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nao1215/placerank/internal/freshness"
	"github.com/nao1215/placerank/internal/log"
	"github.com/nao1215/placerank/internal/model"
	"github.com/nao1215/placerank/internal/queue"
)

// now is one hour after the 14:00 cutoff.
var now = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

type fakeStore struct {
	keywords   []model.Keyword
	sizes      map[int64][]model.RunSize
	incomplete []model.PlaceDetailPlaceholder
	listErr    error
}

func (s *fakeStore) ListKeywords(context.Context) ([]model.Keyword, error) {
	return s.keywords, s.listErr
}

func (s *fakeStore) RunSizes(_ context.Context, id int64, since time.Time) ([]model.RunSize, error) {
	var out []model.RunSize
	for _, size := range s.sizes[id] {
		if !size.CrawledAt.Before(since) {
			out = append(out, size)
		}
	}
	return out, nil
}

func (s *fakeStore) IncompletePlaceholders(context.Context, time.Time) ([]model.PlaceDetailPlaceholder, error) {
	return s.incomplete, nil
}

func at(t time.Time) *time.Time { return &t }

func newScheduler(store Store, q queue.Enqueuer) *Scheduler {
	tracker := freshness.NewTracker(nil,
		freshness.WithLocation(time.UTC),
		freshness.WithClock(func() time.Time { return now }),
		freshness.WithLogger(log.Discard()),
	)
	return New(store, tracker, q, WithLogger(log.Discard()))
}

func drain(t *testing.T, q *queue.Memory, typ queue.Type) []queue.Job {
	t.Helper()
	var jobs []queue.Job
	for {
		job, ok, err := q.Dequeue(context.Background(), typ)
		if err != nil {
			t.Fatalf("Dequeue() error = %v", err)
		}
		if !ok {
			return jobs
		}
		jobs = append(jobs, job)
	}
}

func TestDropRule_Significant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		previous int
		current  int
		want     bool
	}{
		{"page boundary, large drop", 187, 100, true},
		{"page boundary, 17 percent", 240, 200, false},
		{"page boundary, exactly 20 percent", 250, 200, true},
		{"page boundary, exactly 50 rows", 150, 100, true},
		{"page boundary, small drop", 130, 100, false},
		{"not a page boundary", 300, 83, false},
		{"grew", 100, 200, false},
		{"unchanged", 300, 300, false},
		{"no previous run", 0, 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DefaultDropRule.Significant(tt.previous, tt.current); got != tt.want {
				t.Errorf("Significant(%d, %d) = %v, want %v", tt.previous, tt.current, got, tt.want)
			}
		})
	}
}

func TestScheduler_EnqueueStale(t *testing.T) {
	t.Parallel()

	store := &fakeStore{keywords: []model.Keyword{
		{ID: 1, Text: "never"},
		{ID: 2, Text: "yesterday", BasicLastCrawledAt: at(now.Add(-20 * time.Hour))},
		{ID: 3, Text: "fresh", BasicLastCrawledAt: at(now.Add(-10 * time.Minute))},
	}}
	q := queue.NewMemory()

	n, err := newScheduler(store, q).EnqueueStale(context.Background())
	if err != nil {
		t.Fatalf("EnqueueStale() error = %v", err)
	}
	if n != 2 {
		t.Errorf("EnqueueStale() = %d, want 2", n)
	}

	jobs := drain(t, q, queue.TypeBasic)
	if len(jobs) != 2 || jobs[0].KeywordID != 1 || jobs[1].KeywordID != 2 {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
	for _, job := range jobs {
		if job.Force {
			t.Errorf("stale job for keyword %d is forced", job.KeywordID)
		}
	}
}

func TestScheduler_EnqueueSignificantDrops(t *testing.T) {
	t.Parallel()

	cycle := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	run := func(id int64, at time.Time, rows int) model.RunSize {
		return model.RunSize{KeywordID: id, CrawledAt: at, Rows: rows}
	}

	store := &fakeStore{
		keywords: []model.Keyword{
			{ID: 1, Text: "truncated", BasicLastCrawledAt: at(cycle.Add(30 * time.Minute))},
			{ID: 2, Text: "short page", BasicLastCrawledAt: at(cycle.Add(30 * time.Minute))},
			{ID: 3, Text: "not crawled yet", BasicLastCrawledAt: at(cycle.Add(-2 * time.Hour))},
			{ID: 4, Text: "first run", BasicLastCrawledAt: at(cycle.Add(30 * time.Minute))},
		},
		sizes: map[int64][]model.RunSize{
			// newest first
			1: {run(1, cycle.Add(30*time.Minute), 100), run(1, cycle.Add(-20*time.Hour), 187), run(1, cycle.Add(-22*time.Hour), 90)},
			2: {run(2, cycle.Add(30*time.Minute), 83), run(2, cycle.Add(-20*time.Hour), 187)},
			3: {run(3, cycle.Add(-2*time.Hour), 100), run(3, cycle.Add(-20*time.Hour), 187)},
			4: {run(4, cycle.Add(30*time.Minute), 100)},
		},
	}
	q := queue.NewMemory()

	n, err := newScheduler(store, q).EnqueueSignificantDrops(context.Background())
	if err != nil {
		t.Fatalf("EnqueueSignificantDrops() error = %v", err)
	}
	if n != 1 {
		t.Errorf("EnqueueSignificantDrops() = %d, want 1", n)
	}

	jobs := drain(t, q, queue.TypeBasic)
	if len(jobs) != 1 || jobs[0].KeywordID != 1 || !jobs[0].Force {
		t.Errorf("unexpected jobs: %+v", jobs)
	}
}

func TestLatestPair(t *testing.T) {
	t.Parallel()

	cycle := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	sizes := []model.RunSize{
		{CrawledAt: cycle.Add(2 * time.Hour), Rows: 100},
		{CrawledAt: cycle.Add(time.Hour), Rows: 300},
		{CrawledAt: cycle.Add(-time.Hour), Rows: 187},
		{CrawledAt: cycle.Add(-3 * time.Hour), Rows: 50},
	}

	current, previous, ok := latestPair(sizes, cycle)
	if !ok || current.Rows != 100 || previous.Rows != 187 {
		t.Errorf("latestPair() = %d, %d, %v; want 100, 187, true", current.Rows, previous.Rows, ok)
	}
	if _, _, ok := latestPair(sizes[2:], cycle); ok {
		t.Error("latestPair() without a current run should not match")
	}
	if _, _, ok := latestPair(sizes[:2], cycle); ok {
		t.Error("latestPair() without a previous run should not match")
	}
}

func TestScheduler_EnqueueIncompleteDetails(t *testing.T) {
	t.Parallel()

	store := &fakeStore{incomplete: []model.PlaceDetailPlaceholder{{PlaceID: "11"}, {PlaceID: "12"}}}
	q := queue.NewMemory()

	n, err := newScheduler(store, q).EnqueueIncompleteDetails(context.Background())
	if err != nil {
		t.Fatalf("EnqueueIncompleteDetails() error = %v", err)
	}
	if n != 2 {
		t.Errorf("EnqueueIncompleteDetails() = %d, want 2", n)
	}
	jobs := drain(t, q, queue.TypeDetail)
	if len(jobs) != 2 || jobs[0].PlaceID != "11" || jobs[1].PlaceID != "12" {
		t.Errorf("unexpected jobs: %+v", jobs)
	}
}

func TestScheduler_Tick(t *testing.T) {
	t.Parallel()

	t.Run("counts every step", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{
			keywords:   []model.Keyword{{ID: 1, Text: "never"}},
			incomplete: []model.PlaceDetailPlaceholder{{PlaceID: "11"}},
		}
		pass, err := newScheduler(store, queue.NewMemory()).Tick(context.Background())
		if err != nil {
			t.Fatalf("Tick() error = %v", err)
		}
		if pass != (Pass{Stale: 1, Details: 1}) || pass.Total() != 2 {
			t.Errorf("Tick() = %+v", pass)
		}
	})

	t.Run("keeps going after a failing step", func(t *testing.T) {
		t.Parallel()

		listErr := errors.New("database is locked")
		store := &fakeStore{
			listErr:    listErr,
			incomplete: []model.PlaceDetailPlaceholder{{PlaceID: "11"}},
		}
		pass, err := newScheduler(store, queue.NewMemory()).Tick(context.Background())
		if !errors.Is(err, listErr) {
			t.Errorf("Tick() error = %v, want %v", err, listErr)
		}
		if pass.Details != 1 {
			t.Errorf("Details = %d, want 1", pass.Details)
		}
	})
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	q := queue.NewMemory()
	store := &fakeStore{keywords: []model.Keyword{{ID: 1, Text: "never"}}}

	done := make(chan error, 1)
	go func() {
		done <- newScheduler(store, q).Run(ctx, time.Hour)
	}()

	// The first pass runs before the first tick.
	deadline := time.Now().Add(5 * time.Second)
	for {
		n, _ := q.Len(context.Background(), queue.TypeBasic)
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first pass did not run")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}
