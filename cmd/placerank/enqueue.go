package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/placerank/internal/config"
	"github.com/nao1215/placerank/internal/database"
	"github.com/nao1215/placerank/internal/queue"
)

// NewEnqueueCmd creates the enqueue command.
func NewEnqueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue [keyword...]",
		Short: "Add keywords and queue a crawl for them",
		Long: `Enqueue registers keywords that are not tracked yet and queues a basic
crawl job for each. Jobs added by hand are forced, so they run even if the
keyword was already crawled in this cycle, and jump ahead of scheduled jobs.

With --place, a single user detail job for the given place ids is queued
instead.

Examples:
  # Track a new keyword and crawl it as soon as a worker is free
  placerank enqueue "성수 카페"

  # Queue a regular job that is skipped when the keyword is fresh
  placerank enqueue --no-force "강남 맛집"

  # Ask the detail crawler to refresh two places
  placerank enqueue --place 1000001 --place 1000002`,
		Args: cobra.ArbitraryArgs,
		RunE: runEnqueueCmd,
	}

	cmd.Flags().Bool("restaurant", false, "Classify new keywords as restaurant keywords")
	cmd.Flags().Bool("no-force", false, "Let the worker skip keywords that are already fresh")
	cmd.Flags().StringSlice("place", nil, "Queue a user detail job for these place ids")
	cmd.Flags().Int("priority", queue.PriorityUser, "Priority of user detail jobs")

	return cmd
}

func runEnqueueCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	places, err := cmd.Flags().GetStringSlice("place")
	if err != nil {
		return err
	}
	if len(args) == 0 && len(places) == 0 {
		return errors.New("no keywords provided (pass keywords as arguments or use --place)")
	}

	logger := setupLogger(cfg, os.Stderr)
	ctx, stop := signalContext(cmd.Context(), logger)
	defer stop()

	q, err := openQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer q.Close()

	if len(places) > 0 {
		priority, err := cmd.Flags().GetInt("priority")
		if err != nil {
			return err
		}
		job := queue.NewUserDetailJob(places, priority)
		if err := q.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("failed to enqueue user detail job: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Queued user detail job %s for %d place(s)\n", job.ID, len(places))
	}
	if len(args) == 0 {
		return nil
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	opts, err := enqueueOptionsFrom(cmd)
	if err != nil {
		return err
	}
	return enqueueKeywords(ctx, cmd, cfg, store, q, args, opts, logger)
}

type enqueueOptions struct {
	restaurant *bool
	force      bool
}

func enqueueOptionsFrom(cmd *cobra.Command) (enqueueOptions, error) {
	noForce, err := cmd.Flags().GetBool("no-force")
	if err != nil {
		return enqueueOptions{}, err
	}
	opts := enqueueOptions{force: !noForce}
	if cmd.Flags().Changed("restaurant") {
		v, err := cmd.Flags().GetBool("restaurant")
		if err != nil {
			return enqueueOptions{}, err
		}
		opts.restaurant = &v
	}
	return opts, nil
}

// enqueueKeywords finds or creates every keyword and queues a basic job
// for it.
func enqueueKeywords(ctx context.Context, cmd *cobra.Command, cfg *config.Config, store database.KeywordStore, q queue.Enqueuer, keywords []string, opts enqueueOptions, logger *slog.Logger) error {
	for _, text := range keywords {
		restaurant := opts.restaurant
		if restaurant == nil {
			restaurant = cfg.ForKeyword(text).Restaurant
		}
		kw, err := store.EnsureKeyword(ctx, text, restaurant)
		if err != nil {
			return fmt.Errorf("failed to register keyword %q: %w", text, err)
		}

		job := queue.NewBasicJob(kw, opts.force)
		if err := q.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("failed to enqueue keyword %q: %w", kw.Text, err)
		}
		logger.Debug("basic job enqueued", "job_id", job.ID, "keyword_id", kw.ID, "force", opts.force)
		fmt.Fprintf(cmd.OutOrStdout(), "Queued %q (id %d, %s list)\n", kw.Text, kw.ID, kw.Route())
	}
	return nil
}
