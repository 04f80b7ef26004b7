package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/placerank/internal/progress"
	"github.com/nao1215/placerank/internal/queue"
)

// Runner executes one crawl per call with a fresh pipeline.
type Runner struct {
	factory func() *Pipeline
	hook    func(Result)
	logger  *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithResultHook is called with every result, typically to record metrics.
func WithResultHook(fn func(Result)) RunnerOption {
	return func(r *Runner) {
		r.hook = fn
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a Runner. factory is called once per crawl; give its
// pipelines WithClaims to keep two crawls of one keyword apart.
func NewRunner(factory func() *Pipeline, opts ...RunnerOption) *Runner {
	r := &Runner{
		factory: factory,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run crawls the keyword of req. The returned Result carries the error,
// if any, after every resource of the run was released.
func (r *Runner) Run(ctx context.Context, req Request) Result {
	run := NewRun(req)

	r.logger.Info("crawl started", "keyword", req.Keyword, "keyword_id", req.KeywordID, "force", req.Force)
	err := r.factory().Execute(ctx, run)
	return r.finish(run.Result(err))
}

func (r *Runner) finish(res Result) Result {
	switch {
	case res.Error != nil:
		r.logger.Error("crawl failed",
			"keyword", res.Keyword,
			"keyword_id", res.KeywordID,
			"elapsed", res.Elapsed,
			"error", res.Error)
	case res.Skipped:
		r.logger.Info("crawl skipped", "keyword", res.Keyword, "keyword_id", res.KeywordID)
	default:
		r.logger.Info("crawl completed",
			"keyword", res.Keyword,
			"keyword_id", res.KeywordID,
			"items", res.ItemsCount,
			"termination", string(res.Termination),
			"elapsed", res.Elapsed)
	}
	if r.hook != nil {
		r.hook(res)
	}
	return res
}

// HandleBasicJob is a queue.Handler for basic jobs. The run error is
// returned so that the queue retries the job.
func (r *Runner) HandleBasicJob(ctx context.Context, job queue.Job) error {
	if job.Type != queue.TypeBasic {
		return fmt.Errorf("%w: %s", queue.ErrUnknownJobType, job.Type)
	}
	res := r.Run(ctx, Request{
		KeywordID: job.KeywordID,
		Keyword:   job.Keyword,
		Force:     job.Force,
	})
	return res.Error
}

// retryable reports whether a failed crawl may succeed when run again.
func retryable(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrNoKeyword) &&
		!errors.Is(err, progress.ErrInProgress) &&
		!errors.Is(err, context.Canceled)
}
