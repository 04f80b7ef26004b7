package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/placerank/internal/metrics"
	"github.com/nao1215/placerank/internal/pacing"
	"github.com/nao1215/placerank/internal/pipeline"
	"github.com/nao1215/placerank/internal/progress"
	"github.com/nao1215/placerank/internal/queue"
	"github.com/nao1215/placerank/internal/retry"
)

// NewWorkerCmd creates the worker command.
func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued crawl jobs",
		Long: `Worker consumes basic crawl jobs from the queue until interrupted. Failed
jobs are retried with exponential backoff up to maxAttempts; a job that is
interrupted by shutdown goes back to the queue without using an attempt.

Detail jobs produced by the crawls stay in the queue for the detail
crawler.

Examples:
  # Run one crawl at a time
  placerank worker

  # Run two crawls at once and expose Prometheus metrics
  placerank worker --concurrency 2 --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: runWorkerCmd,
	}

	cmd.Flags().Int("concurrency", 0, "Basic jobs processed at once (default: workerConcurrency from the config)")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	return cmd
}

func runWorkerCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if n, err := cmd.Flags().GetInt("concurrency"); err != nil {
		return err
	} else if n > 0 {
		cfg.WorkerConcurrency = n
	}
	if addr, err := cmd.Flags().GetString("metrics-addr"); err != nil {
		return err
	} else if addr != "" {
		cfg.MetricsAddr = addr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg, os.Stderr)
	ctx, stop := signalContext(cmd.Context(), logger)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	q, err := openQueue(ctx, cfg, logger)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer func() {
		if err := closeAll(q, store); err != nil {
			logger.Error("failed to close resources", "error", err)
		}
	}()

	tracker, err := newTracker(cfg, store, logger)
	if err != nil {
		return err
	}

	running := progress.New(progress.WithTTL(cfg.ProgressTTL), progress.WithLogger(logger))
	m := metrics.New(
		metrics.WithProgress(running),
		metrics.WithQueue(q),
		metrics.WithRuntimeCollectors(),
		metrics.WithLogger(logger),
	)

	pacer := pacing.New(pacing.WithLogger(logger))
	runner := newRunner(runnerDeps{
		cfg:      cfg,
		store:    store,
		tracker:  tracker,
		browser:  pipeline.FromManager(newBrowser(cfg, pacer, logger)),
		pacer:    pacer,
		enqueuer: q,
		progress: running,
		onResult: m.ObserveResult,
		logger:   logger,
	})

	w := queue.NewWorker(q,
		queue.WithMaxAttempts(cfg.MaxAttempts),
		queue.WithBackoff(retry.Exponential(cfg.BackoffBase, 2, 0)),
		queue.WithJobTimeout(cfg.JobTimeout),
		queue.WithObserver(m.ObserveJob),
		queue.WithWorkerLogger(logger),
	)
	w.Handle(queue.TypeBasic, runner.HandleBasicJob,
		queue.WithConcurrency(cfg.WorkerConcurrency),
		queue.WithRatePerMinute(cfg.WorkerRatePerMinute),
	)

	fmt.Fprintf(cmd.ErrOrStderr(), "Worker started (concurrency: %d)\n", cfg.WorkerConcurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(gctx)
	})
	g.Go(func() error {
		running.RunSweeper(gctx, time.Minute)
		return nil
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return m.Serve(gctx, cfg.MetricsAddr)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("worker stopped")
	return nil
}
