package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/placerank/internal/config"
	"github.com/nao1215/placerank/internal/pacing"
	"github.com/nao1215/placerank/internal/pipeline"
	"github.com/nao1215/placerank/internal/progress"
	"github.com/nao1215/placerank/internal/queue"
	"github.com/nao1215/placerank/internal/report"
	"github.com/nao1215/placerank/internal/retry"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [keyword...]",
		Short: "Crawl the ranking of keywords now",
		Long: `Crawl opens a browser session per keyword, scrolls the result list until
it is fully loaded and stores the ranking. Keywords already crawled in the
current cycle are skipped unless --force is given.

Up to --batch sessions run at once; batches are separated by a short random
pause. A detail job is enqueued for every ranked place unless
--no-detail-jobs is given.

Examples:
  # Crawl two keywords
  placerank crawl "강남 맛집" "홍대 카페"

  # Crawl every keyword listed in a file, one per line
  placerank crawl --list keywords.txt

  # Recrawl a keyword crawled earlier today and print Markdown
  placerank crawl --force --markdown "성수 카페"`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	cmd.Flags().StringP("list", "l", "", "File with one keyword per line")
	cmd.Flags().BoolP("force", "F", false, "Crawl even if the keyword is fresh")
	cmd.Flags().Bool("restaurant", false, "Classify new keywords as restaurant keywords")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize, "Number of concurrent browser sessions")
	cmd.Flags().Bool("no-detail-jobs", false, "Do not enqueue detail jobs for ranked places")
	addReportFlags(cmd)

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := readReportFlags(cmd, cfg); err != nil {
		return err
	}
	if cmd.Flags().Changed("batch") {
		if cfg.BatchSize, err = cmd.Flags().GetInt("batch"); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	reqs, err := crawlRequests(cmd, args)
	if err != nil {
		return err
	}
	noDetailJobs, err := cmd.Flags().GetBool("no-detail-jobs")
	if err != nil {
		return err
	}

	logger := setupLogger(cfg, os.Stderr)
	ctx, stop := signalContext(cmd.Context(), logger)
	defer stop()

	return runCrawl(ctx, cmd, cfg, reqs, !noDetailJobs, logger)
}

// crawlRequests collects keywords from the arguments and the --list file.
func crawlRequests(cmd *cobra.Command, args []string) ([]pipeline.Request, error) {
	listPath, err := cmd.Flags().GetString("list")
	if err != nil {
		return nil, err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return nil, err
	}

	keywords := append([]string(nil), args...)
	if listPath != "" {
		listed, err := readKeywordList(listPath)
		if err != nil {
			return nil, err
		}
		keywords = append(keywords, listed...)
	}
	if len(keywords) == 0 {
		return nil, errors.New("no keywords provided (pass keywords as arguments or use --list)")
	}

	var restaurant *bool
	if cmd.Flags().Changed("restaurant") {
		v, err := cmd.Flags().GetBool("restaurant")
		if err != nil {
			return nil, err
		}
		restaurant = &v
	}

	reqs := make([]pipeline.Request, 0, len(keywords))
	for _, kw := range keywords {
		reqs = append(reqs, pipeline.Request{Keyword: kw, Restaurant: restaurant, Force: force})
	}
	return reqs, nil
}

// readKeywordList reads one keyword per line, skipping blank lines and
// lines starting with #.
func readKeywordList(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided list path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open keyword list: %w", err)
	}
	defer f.Close()

	var keywords []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keywords = append(keywords, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read keyword list: %w", err)
	}
	return keywords, nil
}

func runCrawl(ctx context.Context, cmd *cobra.Command, cfg *config.Config, reqs []pipeline.Request, detailJobs bool, logger *slog.Logger) error {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var enqueuer queue.Enqueuer
	if detailJobs {
		q, err := openQueue(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer q.Close()
		enqueuer = q
	}

	tracker, err := newTracker(cfg, store, logger)
	if err != nil {
		return err
	}
	pacer := pacing.New(pacing.WithLogger(logger))

	runner := newRunner(runnerDeps{
		cfg:      cfg,
		store:    store,
		tracker:  tracker,
		browser:  pipeline.FromManager(newBrowser(cfg, pacer, logger)),
		pacer:    pacer,
		enqueuer: enqueuer,
		progress: progress.New(progress.WithTTL(cfg.ProgressTTL), progress.WithLogger(logger)),
		logger:   logger,
	})

	bp := pipeline.NewBatchProcessor(runner, pacer,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchDelay(cfg.BatchDelayMin, cfg.BatchDelayMax),
		pipeline.WithKeywordTimeout(cfg.KeywordTimeout),
		pipeline.WithRetries(cfg.KeywordRetries,
			retry.Exponential(cfg.RetryBackoffBase, cfg.RetryBackoffFactor, cfg.RetryBackoffMax)),
		pipeline.WithBatchLogger(logger),
	)

	stderr := cmd.ErrOrStderr()
	fmt.Fprintf(stderr, "Crawling %d keyword(s) (concurrency: %d)...\n", len(reqs), cfg.BatchSize)
	startTime := time.Now()

	results := make([]pipeline.Result, len(reqs))
	var mu sync.Mutex
	done := 0
	err = bp.ProcessBatchWithCallback(ctx, reqs, func(res pipeline.Result, index int) {
		mu.Lock()
		defer mu.Unlock()
		results[index] = res
		done++
		fmt.Fprintf(stderr, "[%d/%d] %s: %s\n", done, len(reqs), res.Keyword, resultStatus(res))
	})
	fmt.Fprintf(stderr, "Finished in %s\n\n", time.Since(startTime).Round(time.Millisecond))

	w, closeReport, reportErr := openReport(cfg, cmd.OutOrStdout())
	if reportErr != nil {
		return errors.Join(err, reportErr)
	}
	batch := report.NewBatchReport(results[:filled(results)], tracker.Now())
	if _, werr := w.WriteBatch(batch); werr != nil {
		reportErr = fmt.Errorf("failed to write report: %w", werr)
	}
	if cerr := closeReport(); cerr != nil && reportErr == nil {
		reportErr = cerr
	}

	if err != nil || reportErr != nil {
		return errors.Join(err, reportErr)
	}
	if batch.HasFailures() {
		return fmt.Errorf("%d of %d keyword(s) failed", batch.Failed, len(reqs))
	}
	return nil
}

// filled returns the length of the prefix of results that was processed.
// A cancelled batch leaves the tail empty.
func filled(results []pipeline.Result) int {
	for i, res := range results {
		if res.Keyword == "" && res.KeywordID == 0 {
			return i
		}
	}
	return len(results)
}

func resultStatus(res pipeline.Result) string {
	switch {
	case res.Error != nil:
		return "failed: " + res.ErrorMessage
	case res.Skipped:
		return "skipped (fresh)"
	default:
		return fmt.Sprintf("%d places (%s)", res.ItemsCount, res.Termination)
	}
}
