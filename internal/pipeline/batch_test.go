package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/placerank/internal/log"
	"github.com/nao1215/placerank/internal/retry"
)

// scriptedStep fails the first failures[keyword] attempts of a keyword.
type scriptedStep struct {
	mu       sync.Mutex
	failures map[string]int
	attempts map[string]int
	active   int
	peak     int
}

func (s *scriptedStep) Name() string { return "scripted" }

func (s *scriptedStep) Do(_ context.Context, run *Run) error {
	s.mu.Lock()
	s.attempts[run.Request.Keyword]++
	n := s.attempts[run.Request.Keyword]
	s.active++
	s.peak = max(s.peak, s.active)
	s.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	s.active--
	s.mu.Unlock()

	if n <= s.failures[run.Request.Keyword] {
		return fmt.Errorf("attempt %d failed", n)
	}
	return nil
}

func newScriptedRunner(step *scriptedStep) *Runner {
	return NewRunner(func() *Pipeline {
		p := New(WithLogger(log.Discard()))
		p.AddStep(step)
		return p
	}, WithRunnerLogger(log.Discard()))
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func TestBatchProcessor_ProcessBatch(t *testing.T) {
	t.Parallel()

	step := &scriptedStep{
		failures: map[string]int{"flaky": 1, "broken": 5},
		attempts: make(map[string]int),
	}
	delay := &countingDelay{}
	bp := NewBatchProcessor(newScriptedRunner(step), delay,
		WithConcurrency(2),
		WithRetries(1, retry.Constant(0)),
		WithRetrySleep(noSleep),
		WithBatchLogger(log.Discard()),
	)

	reqs := []Request{{Keyword: "a"}, {Keyword: "flaky"}, {Keyword: "broken"}, {Keyword: "b"}, {Keyword: "c"}}
	results, err := bp.ProcessBatch(context.Background(), reqs)
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	if len(results) != len(reqs) {
		t.Fatalf("results = %d, want %d", len(results), len(reqs))
	}
	for i, res := range results {
		if res.Keyword != reqs[i].Keyword {
			t.Errorf("result %d is for %q, want %q", i, res.Keyword, reqs[i].Keyword)
		}
		wantSuccess := reqs[i].Keyword != "broken"
		if res.Success != wantSuccess {
			t.Errorf("%s: Success = %v, want %v (%v)", res.Keyword, res.Success, wantSuccess, res.Error)
		}
	}

	if step.attempts["flaky"] != 2 {
		t.Errorf("flaky attempts = %d, want 2", step.attempts["flaky"])
	}
	if step.attempts["broken"] != 2 {
		t.Errorf("broken attempts = %d, want 2 (one retry)", step.attempts["broken"])
	}
	if step.peak > 2 {
		t.Errorf("peak concurrency = %d, want at most 2", step.peak)
	}
	// Five keywords in batches of two make three batches and two pauses.
	if got := delay.count(); got != 2 {
		t.Errorf("inter-batch delays = %d, want 2", got)
	}
}

func TestBatchProcessor_KeywordTimeout(t *testing.T) {
	t.Parallel()

	slow := stepFunc(func(ctx context.Context, _ *Run) error {
		<-ctx.Done()
		return ctx.Err()
	})
	runner := NewRunner(func() *Pipeline {
		p := New(WithLogger(log.Discard()))
		p.AddStep(slow)
		return p
	}, WithRunnerLogger(log.Discard()))

	bp := NewBatchProcessor(runner, noDelay{},
		WithKeywordTimeout(10*time.Millisecond),
		WithRetries(0, nil),
		WithBatchLogger(log.Discard()),
	)

	results, err := bp.ProcessBatch(context.Background(), []Request{{Keyword: "slow"}})
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}
	if !errors.Is(results[0].Error, context.DeadlineExceeded) {
		t.Errorf("result error = %v, want DeadlineExceeded", results[0].Error)
	}
}

func TestBatchProcessor_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	step := &scriptedStep{failures: map[string]int{}, attempts: make(map[string]int)}
	bp := NewBatchProcessor(newScriptedRunner(step), noDelay{}, WithConcurrency(1), WithBatchLogger(log.Discard()))

	_, err := bp.ProcessBatch(ctx, []Request{{Keyword: "a"}, {Keyword: "b"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ProcessBatch() error = %v, want context.Canceled", err)
	}
}

func TestBatchProcessor_NoRetryForPermanentErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	runner := NewRunner(func() *Pipeline {
		p := New(WithLogger(log.Discard()))
		p.AddStep(stepFunc(func(context.Context, *Run) error {
			calls++
			return ErrNoKeyword
		}))
		return p
	}, WithRunnerLogger(log.Discard()))

	bp := NewBatchProcessor(runner, noDelay{}, WithRetries(3, retry.Constant(0)), WithRetrySleep(noSleep), WithBatchLogger(log.Discard()))
	if _, err := bp.ProcessBatch(context.Background(), []Request{{}}); err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

// stepFunc adapts a function to Step.
type stepFunc func(ctx context.Context, run *Run) error

func (f stepFunc) Name() string                          { return "func" }
func (f stepFunc) Do(ctx context.Context, run *Run) error { return f(ctx, run) }
