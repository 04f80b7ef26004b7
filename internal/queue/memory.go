package queue

import (
	"container/heap"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Memory is an in-process Backend.
type Memory struct {
	mu      sync.Mutex
	ready   map[Type]*jobHeap
	delayed map[Type][]delayedJob
	failed  map[Type][]Job
	active  map[string]Job
	seq     uint64
	now     func() time.Time
}

var _ Backend = (*Memory)(nil)

// MemoryOption configures a Memory backend.
type MemoryOption func(*Memory)

// WithMemoryClock replaces time.Now when deciding whether delayed jobs are due.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory creates an empty Memory backend.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		ready:   make(map[Type]*jobHeap),
		delayed: make(map[Type][]delayedJob),
		failed:  make(map[Type][]Job),
		active:  make(map[string]Job),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enqueue adds a ready job.
func (m *Memory) Enqueue(_ context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.push(job.prepare(m.now()))
	return nil
}

// Dequeue pops the highest-priority ready job of t.
func (m *Memory) Dequeue(_ context.Context, t Type) (Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.promote(t)
	h := m.ready[t]
	if h == nil || h.Len() == 0 {
		return Job{}, false, nil
	}
	item, ok := heap.Pop(h).(heapItem)
	if !ok {
		return Job{}, false, fmt.Errorf("unexpected heap item")
	}
	m.active[item.job.ID] = item.job
	return item.job, true, nil
}

// Ack forgets a dequeued job.
func (m *Memory) Ack(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.active, job.ID)
	return nil
}

// Retry parks job until at.
func (m *Memory) Retry(_ context.Context, job Job, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.active, job.ID)
	m.delayed[job.Type] = append(m.delayed[job.Type], delayedJob{job: job, due: at})
	return nil
}

// Fail records job as failed.
func (m *Memory) Fail(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.active, job.ID)
	m.failed[job.Type] = append(m.failed[job.Type], job)
	return nil
}

// Active returns the dequeued jobs of t that were not acknowledged,
// retried or failed yet.
func (m *Memory) Active(_ context.Context, t Type) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, job := range m.active {
		if job.Type == t {
			n++
		}
	}
	return n, nil
}

// Len returns ready plus delayed jobs of t.
func (m *Memory) Len(_ context.Context, t Type) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.delayed[t])
	if h := m.ready[t]; h != nil {
		n += h.Len()
	}
	return n, nil
}

// Failed returns failed jobs of t, newest first.
func (m *Memory) Failed(_ context.Context, t Type) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := slices.Clone(m.failed[t])
	slices.Reverse(jobs)
	return jobs, nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

// push must be called with mu held.
func (m *Memory) push(job Job) {
	h := m.ready[job.Type]
	if h == nil {
		h = &jobHeap{}
		m.ready[job.Type] = h
	}
	m.seq++
	heap.Push(h, heapItem{job: job, seq: m.seq})
}

// promote moves due delayed jobs of t to the ready heap. mu must be held.
func (m *Memory) promote(t Type) {
	now := m.now()
	pending := m.delayed[t][:0]
	for _, d := range m.delayed[t] {
		if d.due.After(now) {
			pending = append(pending, d)
			continue
		}
		m.push(d.job)
	}
	m.delayed[t] = pending
}

type delayedJob struct {
	job Job
	due time.Time
}

type heapItem struct {
	job Job
	seq uint64
}

// jobHeap orders by priority descending, then by insertion order.
type jobHeap []heapItem

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority > h[j].job.Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) {
	item, ok := x.(heapItem)
	if !ok {
		return
	}
	*h = append(*h, item)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
