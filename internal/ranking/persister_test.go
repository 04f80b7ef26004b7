package ranking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nao1215/placerank/internal/database"
	"github.com/nao1215/placerank/internal/database/sqlite"
	"github.com/nao1215/placerank/internal/freshness"
	"github.com/nao1215/placerank/internal/log"
	"github.com/nao1215/placerank/internal/model"
	"github.com/nao1215/placerank/internal/queue"
)

func setup(t *testing.T) (*sqlite.RankDB, model.Keyword) {
	t.Helper()

	db, err := sqlite.Open(t.TempDir(), sqlite.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	kw, err := db.EnsureKeyword(context.Background(), "연남동 카페", nil)
	if err != nil {
		t.Fatalf("EnsureKeyword() error = %v", err)
	}
	return db, kw
}

func items(n int) []model.ListingItem {
	out := make([]model.ListingItem, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, model.ListingItem{
			Rank:       i,
			PlaceID:    fmt.Sprintf("%d", 2000000+i),
			Name:       fmt.Sprintf("Cafe %d", i),
			Category:   "카페",
			SavedCount: i,
		})
	}
	return out
}

var (
	tracker = freshness.NewTracker(nil, freshness.WithLocation(time.UTC), freshness.WithCutoffHour(14))
	runAt   = time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)
	cycle   = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
)

func TestPersistWritesRunInOneTransaction(t *testing.T) {
	t.Parallel()

	db, kw := setup(t)
	ctx := context.Background()
	q := queue.NewMemory()
	p := NewPersister(db, tracker, WithEnqueuer(q), WithLogger(log.Discard()))

	sum, err := p.Persist(ctx, kw, items(47), runAt)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	if sum.Rows != 47 || sum.Places != 47 || sum.Created != 47 || sum.Enqueued != 47 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if !sum.CycleStart.Equal(cycle) {
		t.Errorf("CycleStart = %v, want %v", sum.CycleStart, cycle)
	}
	if n, _ := db.CountRankRows(ctx, kw.ID); n != 47 {
		t.Errorf("rank rows = %d, want 47", n)
	}
	if n, _ := db.CountPlaceholders(ctx, cycle); n != 47 {
		t.Errorf("placeholders = %d, want 47", n)
	}
	if n, _ := q.Len(ctx, queue.TypeDetail); n != 47 {
		t.Errorf("detail jobs = %d, want 47", n)
	}

	got, _ := db.GetKeyword(ctx, kw.ID)
	if got.BasicLastCrawledAt == nil || !got.BasicLastCrawledAt.Equal(runAt) {
		t.Errorf("freshness marker = %v, want %v", got.BasicLastCrawledAt, runAt)
	}

	latest, _ := db.LatestRun(ctx, kw.ID)
	for i, row := range latest {
		if row.Rank != i+1 {
			t.Fatalf("rank %d at position %d", row.Rank, i)
		}
	}
}

func TestPersistReplayIsIdempotentForPlaceholders(t *testing.T) {
	t.Parallel()

	db, kw := setup(t)
	ctx := context.Background()
	p := NewPersister(db, tracker, WithLogger(log.Discard()))

	if _, err := p.Persist(ctx, kw, items(10), runAt); err != nil {
		t.Fatalf("first Persist() error = %v", err)
	}

	replay := items(10)
	replay[0].SavedCount = 999
	sum, err := p.Persist(ctx, kw, replay, runAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("replay Persist() error = %v", err)
	}

	if sum.Created != 0 || sum.Updated != 1 || sum.Unchanged != 9 {
		t.Errorf("unexpected replay summary: %+v", sum)
	}
	if n, _ := db.CountPlaceholders(ctx, cycle); n != 10 {
		t.Errorf("placeholders = %d, want 10", n)
	}
	// Rank history duplicates on replay.
	if n, _ := db.CountRankRows(ctx, kw.ID); n != 20 {
		t.Errorf("rank rows = %d, want 20", n)
	}
}

func TestPersistNextCycleCreatesNewPlaceholders(t *testing.T) {
	t.Parallel()

	db, kw := setup(t)
	ctx := context.Background()
	p := NewPersister(db, tracker, WithLogger(log.Discard()))

	if _, err := p.Persist(ctx, kw, items(3), runAt); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	sum, err := p.Persist(ctx, kw, items(3), runAt.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if sum.Created != 3 {
		t.Errorf("Created = %d, want 3 in the next cycle", sum.Created)
	}
}

func TestPersistEmptyRunOnlyMarksKeyword(t *testing.T) {
	t.Parallel()

	db, kw := setup(t)
	ctx := context.Background()
	q := queue.NewMemory()
	p := NewPersister(db, tracker, WithEnqueuer(q), WithLogger(log.Discard()))

	sum, err := p.Persist(ctx, kw, nil, runAt)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if sum.Rows != 0 || sum.Enqueued != 0 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if n, _ := db.CountRankRows(ctx, kw.ID); n != 0 {
		t.Errorf("rank rows = %d, want 0", n)
	}
	got, _ := db.GetKeyword(ctx, kw.ID)
	if got.BasicLastCrawledAt == nil {
		t.Error("freshness marker not set for empty run")
	}
}

func TestPersistDuplicatePlaces(t *testing.T) {
	t.Parallel()

	db, kw := setup(t)
	ctx := context.Background()
	q := queue.NewMemory()
	p := NewPersister(db, tracker, WithEnqueuer(q), WithLogger(log.Discard()))

	run := items(3)
	run = append(run, model.ListingItem{Rank: 4, PlaceID: run[0].PlaceID, Name: run[0].Name})

	sum, err := p.Persist(ctx, kw, run, runAt)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if sum.Rows != 4 || sum.Places != 3 || sum.Enqueued != 3 {
		t.Errorf("unexpected summary: %+v", sum)
	}
}

// failingStore fails the freshness update inside the transaction.
type failingStore struct {
	*sqlite.RankDB
}

type failingWriter struct {
	database.RunWriter
}

var errMarker = errors.New("marker update failed")

func (f failingStore) WithinTx(ctx context.Context, fn func(context.Context, database.RunWriter) error) error {
	return f.RankDB.WithinTx(ctx, func(ctx context.Context, w database.RunWriter) error {
		return fn(ctx, failingWriter{w})
	})
}

func (failingWriter) MarkBasicCrawled(context.Context, int64, time.Time) error {
	return errMarker
}

func TestPersistRollsBackOnError(t *testing.T) {
	t.Parallel()

	db, kw := setup(t)
	ctx := context.Background()
	q := queue.NewMemory()
	p := NewPersister(failingStore{db}, tracker, WithEnqueuer(q), WithLogger(log.Discard()))

	_, err := p.Persist(ctx, kw, items(5), runAt)
	if !errors.Is(err, errMarker) {
		t.Fatalf("Persist() error = %v, want errMarker", err)
	}

	if n, _ := db.CountRankRows(ctx, kw.ID); n != 0 {
		t.Errorf("rank rows = %d, want 0 after rollback", n)
	}
	if n, _ := db.CountPlaceholders(ctx, cycle); n != 0 {
		t.Errorf("placeholders = %d, want 0 after rollback", n)
	}
	if n, _ := q.Len(ctx, queue.TypeDetail); n != 0 {
		t.Errorf("detail jobs = %d, want none for a failed run", n)
	}
}

type brokenQueue struct{}

func (brokenQueue) Enqueue(context.Context, queue.Job) error {
	return errors.New("redis down")
}

func TestPersistEnqueueFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	db, kw := setup(t)
	ctx := context.Background()
	p := NewPersister(db, tracker, WithEnqueuer(brokenQueue{}), WithLogger(log.Discard()))

	sum, err := p.Persist(ctx, kw, items(4), runAt)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if sum.EnqueueErr != 4 || sum.Enqueued != 0 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if n, _ := db.CountRankRows(ctx, kw.ID); n != 4 {
		t.Errorf("rank rows = %d, want 4", n)
	}
}
