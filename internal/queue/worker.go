package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nao1215/placerank/internal/pacing"
	"github.com/nao1215/placerank/internal/retry"
)

// Handler processes one job. It must be safe to run again for the same
// job after a failure.
type Handler func(ctx context.Context, job Job) error

// Outcome is what happened to a processed job.
type Outcome string

const (
	OutcomeDone    Outcome = "done"
	OutcomeRetried Outcome = "retried"
	OutcomeFailed  Outcome = "failed"
	// OutcomeRequeued means the worker shut down while the job ran.
	OutcomeRequeued Outcome = "requeued"
)

// Observer is told about every processed job.
type Observer func(job Job, outcome Outcome, err error)

type registration struct {
	handler     Handler
	concurrency int
	limiter     *rate.Limiter
}

// Worker consumes jobs from a Backend.
type Worker struct {
	backend     Backend
	handlers    map[Type]*registration
	maxAttempts int
	backoff     retry.Backoff
	jobTimeout  time.Duration
	poll        time.Duration
	sleep       pacing.SleepFunc
	now         func() time.Time
	observer    Observer
	logger      *slog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithMaxAttempts sets the attempts of jobs that do not carry their own.
// Defaults to 3.
func WithMaxAttempts(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithBackoff sets the wait before retry n. Defaults to 15s doubling.
func WithBackoff(b retry.Backoff) WorkerOption {
	return func(w *Worker) {
		if b != nil {
			w.backoff = b
		}
	}
}

// WithJobTimeout bounds one handler call.
func WithJobTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.jobTimeout = d
		}
	}
}

// WithPollInterval sets how long an idle consumer waits before polling again.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.poll = d
		}
	}
}

// WithWorkerSleep replaces the idle wait.
func WithWorkerSleep(fn pacing.SleepFunc) WorkerOption {
	return func(w *Worker) {
		if fn != nil {
			w.sleep = fn
		}
	}
}

// WithWorkerClock replaces time.Now when computing retry times.
func WithWorkerClock(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithObserver registers a callback for processed jobs.
func WithObserver(o Observer) WorkerOption {
	return func(w *Worker) {
		w.observer = o
	}
}

// WithWorkerLogger sets the logger.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWorker creates a Worker without handlers.
func NewWorker(backend Backend, opts ...WorkerOption) *Worker {
	w := &Worker{
		backend:     backend,
		handlers:    make(map[Type]*registration),
		maxAttempts: 3,
		backoff:     retry.Exponential(15*time.Second, 2, 0),
		jobTimeout:  3 * time.Minute,
		poll:        time.Second,
		sleep:       pacing.Sleep,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandlerOption configures one registered job type.
type HandlerOption func(*registration)

// WithConcurrency sets how many jobs of the type run at once. Defaults to 1.
func WithConcurrency(n int) HandlerOption {
	return func(r *registration) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithRatePerMinute limits how many jobs of the type start per minute.
// Zero or less disables the limit.
func WithRatePerMinute(perMinute float64) HandlerOption {
	return func(r *registration) {
		if perMinute > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(perMinute/60), 1)
		}
	}
}

// Handle registers h for jobs of type t.
func (w *Worker) Handle(t Type, h Handler, opts ...HandlerOption) {
	reg := &registration{handler: h, concurrency: 1}
	for _, opt := range opts {
		opt(reg)
	}
	w.handlers[t] = reg
}

// Run consumes every registered type until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if len(w.handlers) == 0 {
		return ErrNoHandler
	}

	g, ctx := errgroup.WithContext(ctx)
	for t, reg := range w.handlers {
		w.logger.Info("worker started", "type", t, "concurrency", reg.concurrency)
		for range reg.concurrency {
			g.Go(func() error {
				return w.consume(ctx, t, reg)
			})
		}
	}
	return g.Wait()
}

func (w *Worker) consume(ctx context.Context, t Type, reg *registration) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		job, ok, err := w.backend.Dequeue(ctx, t)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("dequeue failed", "type", t, "error", err)
		}
		if err != nil || !ok {
			if w.sleep(ctx, w.poll) != nil {
				return nil
			}
			continue
		}

		if reg.limiter != nil {
			if err := reg.limiter.Wait(ctx); err != nil {
				w.requeue(ctx, job)
				return nil
			}
		}
		_ = w.process(ctx, reg, job)
	}
}

// RunOnce dequeues and processes one job of type t. It reports whether a
// job was found, and returns the handler error of that job.
func (w *Worker) RunOnce(ctx context.Context, t Type) (bool, error) {
	reg, found := w.handlers[t]
	if !found {
		return false, fmt.Errorf("%w: %s", ErrNoHandler, t)
	}

	job, ok, err := w.backend.Dequeue(ctx, t)
	if err != nil || !ok {
		return false, err
	}
	return true, w.process(ctx, reg, job)
}

// Process runs the handler registered for job.Type and applies the retry
// policy to its result.
func (w *Worker) Process(ctx context.Context, job Job) error {
	reg, found := w.handlers[job.Type]
	if !found {
		return fmt.Errorf("%w: %s", ErrNoHandler, job.Type)
	}
	return w.process(ctx, reg, job)
}

func (w *Worker) process(ctx context.Context, reg *registration, job Job) error {
	logger := w.logger.With("job_id", job.ID, "type", job.Type, "attempt", job.Attempts+1)
	logger.Debug("job started", "keyword", job.Keyword, "place_id", job.PlaceID)

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	err := call(jobCtx, reg.handler, job)
	cancel()

	if err == nil {
		logger.Info("job completed")
		if ackErr := w.backend.Ack(context.WithoutCancel(ctx), job); ackErr != nil {
			logger.Error("failed to acknowledge job", "error", ackErr)
		}
		w.observe(job, OutcomeDone, nil)
		return nil
	}

	// Shutdown is not the job's fault, so the attempt is not counted.
	if ctx.Err() != nil {
		w.requeue(ctx, job)
		return err
	}

	job.Attempts++
	job.LastError = err.Error()

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = w.maxAttempts
	}

	if job.Attempts >= maxAttempts {
		logger.Error("job failed permanently", "attempts", job.Attempts, "error", err)
		if failErr := w.backend.Fail(ctx, job); failErr != nil {
			logger.Error("failed to record failed job", "error", failErr)
		}
		w.observe(job, OutcomeFailed, err)
		return err
	}

	wait := w.backoff(job.Attempts - 1)
	logger.Warn("job failed, retrying", "retry_in", wait, "error", err)
	if retryErr := w.backend.Retry(ctx, job, w.now().Add(wait)); retryErr != nil {
		logger.Error("failed to schedule retry", "error", retryErr)
	}
	w.observe(job, OutcomeRetried, err)
	return err
}

// requeue puts job back without counting an attempt.
func (w *Worker) requeue(ctx context.Context, job Job) {
	if err := w.backend.Retry(context.WithoutCancel(ctx), job, w.now()); err != nil {
		w.logger.Error("failed to requeue job", "job_id", job.ID, "error", err)
	}
	w.observe(job, OutcomeRequeued, nil)
}

func (w *Worker) observe(job Job, outcome Outcome, err error) {
	if w.observer != nil {
		w.observer(job, outcome, err)
	}
}

// call runs h and turns a panic into an error.
func call(ctx context.Context, h Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, job)
}
