package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter renders reports as GitHub-flavoured Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// WriteBatch renders a summary table, a termination chart and one row per
// keyword.
func (w *MarkdownWriter) WriteBatch(report *BatchReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Placerank Crawl Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Generated", report.GeneratedAt.Format(timeLayout)},
			{"Keywords", strconv.Itoa(len(report.Results))},
			{"Succeeded", strconv.Itoa(report.Succeeded)},
			{"Skipped", strconv.Itoa(report.Skipped)},
			{"Failed", strconv.Itoa(report.Failed)},
			{"Places", strconv.Itoa(report.Items)},
			{"Detail jobs", strconv.Itoa(report.DetailJobs)},
		},
	})
	md.PlainText("")

	if report.HasFailures() {
		md.Warningf("%d keyword(s) failed and will need another crawl.", report.Failed)
	} else {
		md.Tip("Every keyword was crawled or was already fresh.")
	}
	md.PlainText("")

	if len(report.Terminations) > 0 {
		w.writeTerminationChart(md, report)
	}

	md.H2("Keywords")
	md.PlainText("")
	rows := make([][]string, 0, len(report.Results))
	for _, res := range report.Results {
		status, detail := "✅ ok", string(res.Termination)
		switch {
		case res.Error != nil || !res.Success:
			status, detail = "❌ failed", truncateString(res.ErrorMessage, 60)
		case res.Skipped:
			status, detail = "⏭️ skipped", "fresh"
		}
		rows = append(rows, []string{
			res.Keyword,
			status,
			strconv.Itoa(res.ItemsCount),
			strconv.Itoa(res.Dropped),
			detail,
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Keyword", "Status", "Places", "Dropped", "Detail"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeTerminationChart(md *markdown.Markdown, report *BatchReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Scroll termination"),
		piechart.WithShowData(true),
	)
	for _, reason := range report.Reasons() {
		chart.LabelAndIntValue(string(reason), uint64(report.Terminations[reason]))
	}
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// WriteRanking renders the ranking as a table.
func (w *MarkdownWriter) WriteRanking(ranking *Ranking) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Ranking: " + ranking.Keyword.Text)
	md.PlainText("")

	if len(ranking.Rows) == 0 {
		md.Note("No ranking stored for this keyword yet.")
		md.PlainText("")
		w.writeFooter(md)
		return len(md.String()), md.Build()
	}

	md.PlainTextf("Crawled at %s on the `%s` list.", ranking.CrawledAt().Format(timeLayout), ranking.Keyword.Route())
	md.PlainText("")

	rows := make([][]string, 0, len(ranking.Rows))
	for _, row := range ranking.Rows {
		rows = append(rows, []string{
			strconv.Itoa(row.Rank),
			truncateString(row.PlaceName, 40),
			row.Category,
			"`" + row.PlaceID + "`",
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Rank", "Place", "Category", "Place ID"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by placerank*")
}
