package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/placerank/internal/config"
	"github.com/nao1215/placerank/internal/report"
)

// addReportFlags registers the report format flags shared by crawl and ranks.
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("json", "j", false, "Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "", "Write report to specified file path (creates directories if needed)")
}

// readReportFlags copies the report flags into cfg.
func readReportFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error
	if cfg.JSONReport, err = cmd.Flags().GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown"); err != nil {
		return err
	}
	if cfg.ReportFile, err = cmd.Flags().GetString("output"); err != nil {
		return err
	}
	return nil
}

// openReport returns the report writer of cfg and a close function. The
// report goes to ReportFile when set, to stdout otherwise.
func openReport(cfg *config.Config, stdout io.Writer) (report.Writer, func() error, error) {
	output := stdout
	closeFn := func() error { return nil }

	if cfg.ReportFile != "" {
		if dir := filepath.Dir(cfg.ReportFile); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create output file: %w", err)
		}
		output = f
		closeFn = f.Close
	}

	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion())), closeFn, nil
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output), closeFn, nil
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose)), closeFn, nil
	}
}
