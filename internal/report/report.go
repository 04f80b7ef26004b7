package report

import (
	"cmp"
	"slices"
	"time"

	"github.com/nao1215/placerank/internal/crawler"
	"github.com/nao1215/placerank/internal/model"
	"github.com/nao1215/placerank/internal/pipeline"
)

// BatchReport summarises the results of one crawl command.
type BatchReport struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Results     []pipeline.Result `json:"results"`

	Succeeded  int `json:"succeeded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	Items      int `json:"items"`
	DetailJobs int `json:"detail_jobs"`

	// Terminations counts completed crawls by the rule that ended scrolling.
	Terminations map[crawler.Reason]int `json:"terminations,omitempty"`
}

// NewBatchReport tallies results.
func NewBatchReport(results []pipeline.Result, at time.Time) *BatchReport {
	r := &BatchReport{
		GeneratedAt:  at,
		Results:      results,
		Terminations: make(map[crawler.Reason]int),
	}
	for _, res := range results {
		switch {
		case res.Error != nil || !res.Success:
			r.Failed++
		case res.Skipped:
			r.Skipped++
		default:
			r.Succeeded++
			r.Items += res.ItemsCount
			r.DetailJobs += res.DetailJobs
			if res.Termination != "" {
				r.Terminations[res.Termination]++
			}
		}
	}
	return r
}

// HasFailures reports whether any crawl failed.
func (r *BatchReport) HasFailures() bool {
	return r.Failed > 0
}

// Reasons returns the termination reasons in a stable order, most
// frequent first.
func (r *BatchReport) Reasons() []crawler.Reason {
	reasons := make([]crawler.Reason, 0, len(r.Terminations))
	for reason := range r.Terminations {
		reasons = append(reasons, reason)
	}
	slices.SortFunc(reasons, func(a, b crawler.Reason) int {
		if c := cmp.Compare(r.Terminations[b], r.Terminations[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return reasons
}

// Ranking is the latest stored run of one keyword.
type Ranking struct {
	Keyword model.Keyword   `json:"keyword"`
	Rows    []model.RankRow `json:"rows"`
}

// CrawledAt returns the time of the run, or the zero time for an empty
// ranking.
func (r *Ranking) CrawledAt() time.Time {
	if len(r.Rows) == 0 {
		return time.Time{}
	}
	return r.Rows[0].CrawledAt
}
