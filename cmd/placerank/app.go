package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/placerank/internal/browser"
	"github.com/nao1215/placerank/internal/config"
	"github.com/nao1215/placerank/internal/crawler"
	"github.com/nao1215/placerank/internal/database"
	"github.com/nao1215/placerank/internal/database/postgres"
	"github.com/nao1215/placerank/internal/database/sqlite"
	"github.com/nao1215/placerank/internal/freshness"
	"github.com/nao1215/placerank/internal/geo"
	"github.com/nao1215/placerank/internal/identity"
	"github.com/nao1215/placerank/internal/log"
	"github.com/nao1215/placerank/internal/pacing"
	"github.com/nao1215/placerank/internal/pipeline"
	"github.com/nao1215/placerank/internal/progress"
	"github.com/nao1215/placerank/internal/queue"
	"github.com/nao1215/placerank/internal/ranking"
)

// loadConfig builds the configuration from defaults, the config file and
// the global flags. A config path given on the command line must exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error
	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg.Verbose, err = cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}
	cfg.JSONLog, err = cmd.Flags().GetBool("json-log")
	if err != nil {
		return nil, err
	}

	path := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case path != "":
		if err := config.LoadConfigFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}
	return cfg, nil
}

// setupLogger creates the process logger and makes it the slog default.
func setupLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	logger := log.NewSecureLogger(w, cfg.Verbose)
	if cfg.JSONLog {
		logger = log.NewSecureJSONLogger(w, cfg.Verbose)
	}
	slog.SetDefault(logger)
	return logger
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		if parent.Err() == nil {
			logger.Info("received shutdown signal, cancelling...")
		}
	}()
	return ctx, stop
}

// openStore opens the configured database and applies its schema.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (database.Store, error) {
	switch cfg.DatabaseDriver {
	case config.DatabasePostgres:
		db, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.RunMigrations(cfg.DSN); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("database opened", "driver", cfg.DatabaseDriver, "dsn", log.MaskURLPassword(cfg.DSN))
		return db, nil
	default:
		db, err := sqlite.Open(cfg.DBDir, sqlite.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		logger.Info("database opened", "driver", cfg.DatabaseDriver, "path", db.Path())
		return db, nil
	}
}

// openQueue connects the configured job queue backend.
func openQueue(ctx context.Context, cfg *config.Config, logger *slog.Logger) (queue.Backend, error) {
	if cfg.QueueBackend == config.QueueMemory {
		logger.Warn("using the in-memory queue; jobs are lost when the process exits")
		return queue.NewMemory(), nil
	}
	q, err := queue.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
		queue.WithPrefix(cfg.QueuePrefix),
		queue.WithLease(2*cfg.JobTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("queue connected", "addr", cfg.RedisAddr, "prefix", cfg.QueuePrefix)
	return q, nil
}

// newTracker anchors the freshness cycle in the configured time zone.
func newTracker(cfg *config.Config, marker freshness.Marker, logger *slog.Logger) (*freshness.Tracker, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return freshness.NewTracker(marker,
		freshness.WithLocation(loc),
		freshness.WithCutoffHour(cfg.CycleCutoffHour),
		freshness.WithLogger(logger),
	), nil
}

// newBrowser creates the session manager of a real browser.
func newBrowser(cfg *config.Config, pacer *pacing.Pacer, logger *slog.Logger) *browser.Manager {
	identities := identity.NewProvider(cfg.IdentityPrimary, cfg.IdentitySecondary, identity.WithLogger(logger))
	return browser.NewManager(identities, geo.NewJitterer(nil), pacer,
		browser.WithBaseURL(cfg.SearchBaseURL),
		browser.WithBasePoint(geo.Point{Longitude: cfg.BaseLongitude, Latitude: cfg.BaseLatitude}, cfg.JitterRadiusMeters),
		browser.WithHeadless(cfg.Headless),
		browser.WithProxyServer(cfg.ProxyServer),
		browser.WithNavigationTimeout(cfg.NavigationTimeout),
		browser.WithInitialDelay(cfg.InitialDelayMin, cfg.InitialDelayMax),
		browser.WithLogger(logger),
	)
}

// runnerDeps is everything a crawl runner needs.
type runnerDeps struct {
	cfg      *config.Config
	store    database.Store
	tracker  *freshness.Tracker
	browser  pipeline.Browser
	pacer    *pacing.Pacer
	enqueuer queue.Enqueuer
	progress *progress.Store
	onResult func(pipeline.Result)
	logger   *slog.Logger
}

// newRunner wires the crawl pipeline: resolve keyword, freshness check,
// browser crawl, persist.
func newRunner(d runnerDeps) *pipeline.Runner {
	persisterOpts := []ranking.Option{ranking.WithLogger(d.logger)}
	if d.enqueuer != nil {
		persisterOpts = append(persisterOpts, ranking.WithEnqueuer(d.enqueuer))
	}
	persister := ranking.NewPersister(d.store, d.tracker, persisterOpts...)

	pipelineOpts := []pipeline.Option{pipeline.WithLogger(d.logger)}
	if d.progress != nil {
		pipelineOpts = append(pipelineOpts, pipeline.WithClaims(d.progress))
	}

	rules := ruleConfig(d.cfg)
	factory := func() *pipeline.Pipeline {
		p := pipeline.New(pipelineOpts...)
		p.AddSteps(
			pipeline.NewResolveKeywordStep(d.store, d.cfg.ForKeyword),
			pipeline.NewFreshnessStep(d.tracker),
			pipeline.NewCrawlStep(d.browser, d.pacer,
				pipeline.WithRuleConfig(rules),
				pipeline.WithSettle(d.cfg.SettleDelayMin, d.cfg.SettleDelayMax),
				pipeline.WithKeywordSettings(d.cfg.ForKeyword),
				pipeline.WithCrawlLogger(d.logger),
			),
			pipeline.NewPersistStep(persister, d.tracker.Now),
		)
		return p
	}

	opts := []pipeline.RunnerOption{pipeline.WithRunnerLogger(d.logger)}
	if d.onResult != nil {
		opts = append(opts, pipeline.WithResultHook(d.onResult))
	}
	return pipeline.NewRunner(factory, opts...)
}

func ruleConfig(cfg *config.Config) crawler.RuleConfig {
	return crawler.RuleConfig{
		MaxItems:              cfg.MaxItems,
		PlateauBatchSize:      cfg.PlateauBatchSize,
		PlateauRemainderLimit: cfg.PlateauRemainderLimit,
		PlateauMinItems:       cfg.PlateauMinItems,
		MaxStagnantChecks:     cfg.MaxStagnantChecks,
		MaxScrollIterations:   cfg.MaxScrollIterations,
	}
}

// closeAll closes every closer and joins the errors.
func closeAll(closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
