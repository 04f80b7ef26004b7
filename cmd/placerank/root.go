package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for placerank.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "placerank",
		Short: "Track the search ranking of places for keywords",
		Long: `placerank opens the mobile place search in a real browser, scrolls the
result list of a keyword until it is fully loaded and stores the ranking.

Every keyword is crawled once per daily cycle (14:00 in the configured time
zone by default). Crawls run directly with "crawl" or through the job queue
with "enqueue", "schedule" and "worker".`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .placerank in current directory or XDG config dir)")
	cmd.PersistentFlags().Bool("json-log", false, "Write logs as JSON")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewEnqueueCmd())
	cmd.AddCommand(NewScheduleCmd())
	cmd.AddCommand(NewWorkerCmd())
	cmd.AddCommand(NewRanksCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
