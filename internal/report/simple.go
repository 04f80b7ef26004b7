package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// SimpleWriter renders plain text for the terminal.
type SimpleWriter struct {
	baseWriter

	// verbose adds skip reasons and per-keyword timings.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables additional detail in the output.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteBatch renders one line per keyword followed by the totals.
func (w *SimpleWriter) WriteBatch(report *BatchReport) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "PLACERANK CRAWL REPORT")
	fmt.Fprintf(&sb, "Generated: %s\n", report.GeneratedAt.Format(timeLayout))
	fmt.Fprintf(&sb, "Keywords:  %d\n\n", len(report.Results))

	writeSection(&sb, "KEYWORDS")
	for _, res := range report.Results {
		switch {
		case res.Error != nil || !res.Success:
			fmt.Fprintf(&sb, "  [FAIL] %s: %s\n", res.Keyword, res.ErrorMessage)
		case res.Skipped:
			fmt.Fprintf(&sb, "  [SKIP] %s: already crawled this cycle\n", res.Keyword)
		default:
			fmt.Fprintf(&sb, "  [ OK ] %s: %d places (%s after %d scrolls)\n",
				res.Keyword, res.ItemsCount, res.Termination, res.Iterations)
		}
		if w.verbose {
			fmt.Fprintf(&sb, "         id=%d dropped=%d detail_jobs=%d elapsed=%s\n",
				res.KeywordID, res.Dropped, res.DetailJobs, res.Elapsed.Round(time.Millisecond))
		}
	}
	sb.WriteString("\n")

	writeSection(&sb, "SUMMARY")
	fmt.Fprintf(&sb, "  SUCCEEDED:   %d\n", report.Succeeded)
	fmt.Fprintf(&sb, "  SKIPPED:     %d\n", report.Skipped)
	fmt.Fprintf(&sb, "  FAILED:      %d\n", report.Failed)
	fmt.Fprintf(&sb, "  PLACES:      %d\n", report.Items)
	fmt.Fprintf(&sb, "  DETAIL JOBS: %d\n", report.DetailJobs)
	for _, reason := range report.Reasons() {
		fmt.Fprintf(&sb, "  %-12s %d\n", strings.ToUpper(string(reason))+":", report.Terminations[reason])
	}
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

// WriteRanking renders the ranking as a numbered list.
func (w *SimpleWriter) WriteRanking(ranking *Ranking) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "PLACERANK RANKING")
	fmt.Fprintf(&sb, "Keyword:    %s\n", ranking.Keyword.Text)
	fmt.Fprintf(&sb, "Route:      %s\n", ranking.Keyword.Route())
	if len(ranking.Rows) == 0 {
		sb.WriteString("Crawled at: never\n\n")
		sb.WriteString("  No ranking stored\n\n")
		return w.output.Write([]byte(sb.String()))
	}
	fmt.Fprintf(&sb, "Crawled at: %s\n\n", ranking.CrawledAt().Format(timeLayout))

	for _, row := range ranking.Rows {
		fmt.Fprintf(&sb, "  %3d. %s", row.Rank, row.PlaceName)
		if row.Category != "" {
			fmt.Fprintf(&sb, " (%s)", row.Category)
		}
		if w.verbose {
			fmt.Fprintf(&sb, " [%s]", row.PlaceID)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

func writeBanner(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	pad := max((70-len(title))/2, 0)
	sb.WriteString(strings.Repeat(" ", pad))
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}
