package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/placerank/internal/scheduler"
)

// NewScheduleCmd creates the schedule command.
func NewScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Queue the crawls that are due",
		Long: `Schedule queues a basic job for every keyword not crawled in the current
cycle, a forced recrawl for every keyword whose latest run stored far fewer
places than the previous cycle on a page boundary, and a detail job for
every place of this cycle that still lacks details.

With --watch it keeps running and repeats the pass every --interval.

Examples:
  # Run one pass, e.g. from cron
  placerank schedule

  # Keep scheduling every five minutes
  placerank schedule --watch --interval 5m`,
		Args: cobra.NoArgs,
		RunE: runScheduleCmd,
	}

	cmd.Flags().BoolP("watch", "w", false, "Repeat the pass until interrupted")
	cmd.Flags().Duration("interval", 0, "Time between passes with --watch (default: scheduleEvery from the config)")

	return cmd
}

func runScheduleCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	watch, err := cmd.Flags().GetBool("watch")
	if err != nil {
		return err
	}
	interval, err := cmd.Flags().GetDuration("interval")
	if err != nil {
		return err
	}
	if interval <= 0 {
		interval = cfg.ScheduleEvery
	}

	logger := setupLogger(cfg, os.Stderr)
	ctx, stop := signalContext(cmd.Context(), logger)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	q, err := openQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer q.Close()

	tracker, err := newTracker(cfg, store, logger)
	if err != nil {
		return err
	}
	s := scheduler.New(store, tracker, q, scheduler.WithLogger(logger))

	if watch {
		if err := s.Run(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	pass, err := s.Tick(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "Queued %d job(s): %d stale, %d significant drops, %d incomplete details\n",
		pass.Total(), pass.Stale, pass.Drops, pass.Details)
	return err
}
