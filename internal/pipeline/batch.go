package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/placerank/internal/config"
	"github.com/nao1215/placerank/internal/crawler"
	"github.com/nao1215/placerank/internal/pacing"
	"github.com/nao1215/placerank/internal/retry"
)

// BatchProcessor crawls many keywords. Keywords are taken in batches of
// the concurrency limit; the keywords of a batch run at the same time and
// a random pause separates consecutive batches.
type BatchProcessor struct {
	runner      *Runner
	delayer     crawler.Delayer
	concurrency int
	delayLo     time.Duration
	delayHi     time.Duration
	timeout     time.Duration
	retries     int
	backoff     retry.Backoff
	sleep       pacing.SleepFunc
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets how many browser sessions run at once. Default is 2.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithBatchDelay sets the pause range between batches.
func WithBatchDelay(lo, hi time.Duration) BatchOption {
	return func(b *BatchProcessor) {
		b.delayLo, b.delayHi = lo, hi
	}
}

// WithKeywordTimeout bounds each attempt at one keyword.
func WithKeywordTimeout(d time.Duration) BatchOption {
	return func(b *BatchProcessor) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithRetries sets how many times a failed keyword is tried again and the
// wait before each retry.
func WithRetries(n int, backoff retry.Backoff) BatchOption {
	return func(b *BatchProcessor) {
		if n >= 0 {
			b.retries = n
		}
		if backoff != nil {
			b.backoff = backoff
		}
	}
}

// WithRetrySleep replaces the wait between retries.
func WithRetrySleep(fn pacing.SleepFunc) BatchOption {
	return func(b *BatchProcessor) {
		if fn != nil {
			b.sleep = fn
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor. delayer paces the
// batches; the retry waits use their own backoff.
func NewBatchProcessor(runner *Runner, delayer crawler.Delayer, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		runner:      runner,
		delayer:     delayer,
		concurrency: config.DefaultBatchSize,
		delayLo:     config.DefaultBatchDelayMin,
		delayHi:     config.DefaultBatchDelayMax,
		timeout:     config.DefaultKeywordTimeout,
		retries:     config.DefaultKeywordRetries,
		backoff: retry.Exponential(config.DefaultRetryBackoffBase,
			config.DefaultRetryBackoffFactor, config.DefaultRetryBackoffMax),
		sleep: pacing.Sleep,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch crawls every request and returns the results in request
// order. A failed keyword does not stop the others; the error is only
// non-nil when ctx is cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, reqs []Request) ([]Result, error) {
	results := make([]Result, len(reqs))
	err := bp.ProcessBatchWithCallback(ctx, reqs, func(res Result, i int) {
		results[i] = res
	})
	return results, err
}

// ProcessBatchWithCallback crawls every request and calls callback with
// each result as soon as it is known. The callback runs on the goroutine
// of the crawl and must be safe for concurrent use; it is never called
// twice for the same index.
func (bp *BatchProcessor) ProcessBatchWithCallback(ctx context.Context, reqs []Request, callback func(res Result, index int)) error {
	bp.logger.Info("starting batch processing",
		"total_keywords", len(reqs),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	for start := 0; start < len(reqs); start += bp.concurrency {
		if start > 0 {
			if err := bp.delayer.Delay(ctx, bp.delayLo, bp.delayHi); err != nil {
				return err
			}
		}
		end := min(start+bp.concurrency, len(reqs))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				callback(bp.crawl(gctx, reqs[i]), i)
				return nil
			})
		}
		// Crawl errors are carried by the results.
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return err
		}
		bp.logger.Debug("batch finished", "from", start+1, "to", end, "total", len(reqs))
	}

	bp.logger.Info("batch processing complete",
		"total_keywords", len(reqs),
		"elapsed", time.Since(startTime),
	)
	return nil
}

// crawl runs one keyword with a timeout per attempt and bounded retries.
func (bp *BatchProcessor) crawl(ctx context.Context, req Request) Result {
	var last Result

	res, err := retry.Attempt(ctx, func(ctx context.Context) (Result, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, bp.timeout)
		defer cancel()

		last = bp.runner.Run(attemptCtx, req)
		return last, last.Error
	}, bp.retries, bp.backoff,
		retry.WithSleep(bp.sleep),
		retry.WithRetryIf(retryable),
		retry.WithOnRetry(func(n int, err error, wait time.Duration) {
			bp.logger.Warn("retrying keyword",
				"keyword", req.Keyword,
				"retry", n,
				"wait", wait,
				"error", err,
			)
		}),
	)
	if err != nil {
		last.Success = false
		last.Error = err
		last.ErrorMessage = err.Error()
		return last
	}
	return res
}
