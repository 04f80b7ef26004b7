package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/placerank/internal/model"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryOrdering(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()

	jobs := []Job{
		NewDetailJob("low-1", 0),
		NewDetailJob("high", 5),
		NewDetailJob("low-2", 0),
		NewDetailJob("lowest", -1),
	}
	for _, j := range jobs {
		if err := m.Enqueue(ctx, j); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	want := []string{"high", "low-1", "low-2", "lowest"}
	for _, id := range want {
		job, ok, err := m.Dequeue(ctx, TypeDetail)
		if err != nil || !ok {
			t.Fatalf("Dequeue() = %v, %v", ok, err)
		}
		if job.PlaceID != id {
			t.Errorf("got %s, want %s", job.PlaceID, id)
		}
	}

	if _, ok, _ := m.Dequeue(ctx, TypeDetail); ok {
		t.Error("queue should be empty")
	}
}

func TestMemoryTypesAreSeparate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()

	if err := m.Enqueue(ctx, NewDetailJob("1", 0)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, ok, _ := m.Dequeue(ctx, TypeBasic); ok {
		t.Error("basic queue should be empty")
	}
	if n, _ := m.Len(ctx, TypeDetail); n != 1 {
		t.Errorf("Len(detail) = %d, want 1", n)
	}
}

func TestMemoryDelayedJobs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock()
	m := NewMemory(WithMemoryClock(clock.Now))

	job := NewDetailJob("42", 0)
	if err := m.Retry(ctx, job, clock.Now().Add(time.Minute)); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}

	if _, ok, _ := m.Dequeue(ctx, TypeDetail); ok {
		t.Fatal("delayed job must not be ready before it is due")
	}
	if n, _ := m.Len(ctx, TypeDetail); n != 1 {
		t.Errorf("Len() = %d, want 1 delayed job", n)
	}

	clock.Advance(time.Minute)
	got, ok, err := m.Dequeue(ctx, TypeDetail)
	if err != nil || !ok {
		t.Fatalf("Dequeue() after due = %v, %v", ok, err)
	}
	if got.ID != job.ID {
		t.Errorf("got job %s, want %s", got.ID, job.ID)
	}
}

func TestMemoryFailed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()

	first := NewDetailJob("1", 0)
	second := NewDetailJob("2", 0)
	_ = m.Fail(ctx, first)
	_ = m.Fail(ctx, second)

	failed, err := m.Failed(ctx, TypeDetail)
	if err != nil {
		t.Fatalf("Failed() error = %v", err)
	}
	if len(failed) != 2 || failed[0].ID != second.ID {
		t.Errorf("expected newest first, got %+v", failed)
	}
}

func TestEnqueueValidates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		job  Job
		want error
	}{
		{name: "basic without keyword", job: Job{Type: TypeBasic}, want: ErrInvalidJob},
		{name: "detail without place", job: Job{Type: TypeDetail}, want: ErrInvalidJob},
		{name: "user detail without places", job: Job{Type: TypeUserDetail}, want: ErrInvalidJob},
		{name: "unknown type", job: Job{Type: "review"}, want: ErrUnknownJobType},
		{name: "valid basic", job: NewBasicJob(model.Keyword{ID: 1, Text: "카페"}, false)},
		{name: "valid user detail", job: NewUserDetailJob([]string{"1", "2"}, PriorityUser)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := NewMemory().Enqueue(context.Background(), tt.job)
			if tt.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Enqueue() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewJobs(t *testing.T) {
	t.Parallel()

	kw := model.Keyword{ID: 7, Text: "망원 빵집"}

	basic := NewBasicJob(kw, false)
	if basic.ID == "" || basic.Type != TypeBasic || basic.KeywordID != 7 || basic.Priority != 0 {
		t.Errorf("unexpected basic job: %+v", basic)
	}

	forced := NewBasicJob(kw, true)
	if !forced.Force || forced.Priority != PriorityUser {
		t.Errorf("forced job should carry the user priority: %+v", forced)
	}
	if forced.ID == basic.ID {
		t.Error("job ids must be unique")
	}

	if got := NewDetailJob("1", 1000).Priority; got != MaxPriority {
		t.Errorf("priority not clamped: %d", got)
	}

	ids := []string{"1", "2"}
	batch := NewUserDetailJob(ids, 0)
	ids[0] = "changed"
	if batch.PlaceIDs[0] != "1" {
		t.Error("NewUserDetailJob must copy the id slice")
	}
}

func TestDecodeUserDetailPayload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	payload := []byte(`{"type":"userDetail","place_ids":["1","2"],"priority":10}`)

	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if job.Type != TypeUserDetail {
		t.Fatalf("type = %q, want %q", job.Type, TypeUserDetail)
	}

	m := NewMemory()
	if err := m.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	got, ok, err := m.Dequeue(ctx, TypeUserDetail)
	if err != nil || !ok {
		t.Fatalf("Dequeue() = %v, %v", ok, err)
	}
	if len(got.PlaceIDs) != 2 || got.PlaceIDs[1] != "2" || got.ID == "" {
		t.Errorf("unexpected job: %+v", got)
	}
}
