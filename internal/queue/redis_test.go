package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nao1215/placerank/internal/model"
)

func TestReadyScore(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name          string
		first, second float64
	}{
		{"higher priority first", readyScore(5, base.Add(time.Hour)), readyScore(0, base)},
		{"older first within a priority", readyScore(0, base), readyScore(0, base.Add(time.Millisecond))},
		{"negative priority last", readyScore(0, base.Add(24*time.Hour)), readyScore(-1, base)},
		{"clamped priority", readyScore(MaxPriority, base.Add(time.Second)), readyScore(MaxPriority+50, base)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if !(tt.first < tt.second) {
				t.Errorf("expected %f < %f", tt.first, tt.second)
			}
		})
	}
}

func TestRedisKeys(t *testing.T) {
	t.Parallel()

	r := NewRedis(nil, WithPrefix("test"))
	if got := r.key(TypeBasic, "ready"); got != "test:basic:ready" {
		t.Errorf("key() = %q", got)
	}
	if got := NewRedis(nil).key(TypeDetail, "failed"); got != "placerank:detail:failed" {
		t.Errorf("default key() = %q", got)
	}
}

// dialTestRedis connects to REDIS_ADDR under a fresh prefix and skips the
// test when the variable is not set.
func dialTestRedis(t *testing.T, opts ...RedisOption) *Redis {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping integration test: REDIS_ADDR not set")
	}

	ctx := context.Background()
	prefix := "placerank-test-" + t.Name() + "-" + time.Now().Format("150405.000000")
	r, err := Dial(ctx, addr, "", 0, append([]RedisOption{WithPrefix(prefix)}, opts...)...)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() {
		for _, typ := range Types {
			r.client.Del(ctx,
				r.key(typ, "ready"), r.key(typ, "delayed"), r.key(typ, "failed"),
				r.key(typ, "processing"), r.key(typ, "leases"))
		}
		_ = r.Close()
	})
	return r
}

// TestRedisBackend runs against a real server when REDIS_ADDR is set.
func TestRedisBackend(t *testing.T) {
	ctx := context.Background()
	r := dialTestRedis(t)

	low := NewDetailJob("low", 0)
	high := NewDetailJob("high", 3)
	for _, j := range []Job{low, high} {
		if err := r.Enqueue(ctx, j); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	got, ok, err := r.Dequeue(ctx, TypeDetail)
	if err != nil || !ok || got.PlaceID != "high" {
		t.Fatalf("Dequeue() = %+v, %v, %v", got, ok, err)
	}
	if n, err := r.Active(ctx, TypeDetail); err != nil || n != 1 {
		t.Errorf("Active() = %d, %v, want 1", n, err)
	}

	if err := r.Retry(ctx, got, time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if n, _ := r.Active(ctx, TypeDetail); n != 0 {
		t.Errorf("Active() after Retry = %d, want 0", n)
	}
	got, ok, err = r.Dequeue(ctx, TypeDetail)
	if err != nil || !ok || got.PlaceID != "high" {
		t.Fatalf("due retry should be promoted ahead of lower priority: %+v, %v, %v", got, ok, err)
	}

	if err := r.Fail(ctx, got); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	failed, err := r.Failed(ctx, TypeDetail)
	if err != nil || len(failed) != 1 {
		t.Fatalf("Failed() = %v, %v", failed, err)
	}

	if n, err := r.Len(ctx, TypeDetail); err != nil || n != 1 {
		t.Errorf("Len() = %d, %v, want 1", n, err)
	}
	if n, _ := r.Active(ctx, TypeDetail); n != 0 {
		t.Errorf("Active() after Fail = %d, want 0", n)
	}
}

// TestRedisLease runs against a real server when REDIS_ADDR is set.
func TestRedisLease(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	r := dialTestRedis(t, WithRedisClock(clock.Now), WithLease(time.Minute))

	t.Run("unacknowledged job is handed out again after its lease", func(t *testing.T) {
		job := NewBasicJob(model.Keyword{ID: 1, Text: "강남 맛집"}, false)
		if err := r.Enqueue(ctx, job); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}

		first, ok, err := r.Dequeue(ctx, TypeBasic)
		if err != nil || !ok || first.ID != job.ID {
			t.Fatalf("Dequeue() = %+v, %v, %v", first, ok, err)
		}

		// The worker holding the job is gone and never acknowledges it.
		clock.Advance(59 * time.Second)
		if _, ok, _ := r.Dequeue(ctx, TypeBasic); ok {
			t.Fatal("job handed out again before its lease expired")
		}

		clock.Advance(2 * time.Second)
		again, ok, err := r.Dequeue(ctx, TypeBasic)
		if err != nil || !ok {
			t.Fatalf("Dequeue() after lease = %v, %v", ok, err)
		}
		if again.ID != job.ID || again.KeywordID != 1 {
			t.Errorf("reclaimed job = %+v, want %s", again, job.ID)
		}

		if err := r.Ack(ctx, again); err != nil {
			t.Fatalf("Ack() error = %v", err)
		}
	})

	t.Run("acknowledged job is not reclaimed", func(t *testing.T) {
		job := NewBasicJob(model.Keyword{ID: 2, Text: "홍대 카페"}, false)
		if err := r.Enqueue(ctx, job); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
		got, ok, err := r.Dequeue(ctx, TypeBasic)
		if err != nil || !ok {
			t.Fatalf("Dequeue() = %v, %v", ok, err)
		}
		if err := r.Ack(ctx, got); err != nil {
			t.Fatalf("Ack() error = %v", err)
		}

		clock.Advance(time.Hour)
		if _, ok, _ := r.Dequeue(ctx, TypeBasic); ok {
			t.Error("acknowledged job came back")
		}
		if n, _ := r.Active(ctx, TypeBasic); n != 0 {
			t.Errorf("Active() = %d, want 0", n)
		}
	})
}
