package pipeline

import (
	"time"

	"github.com/nao1215/placerank/internal/crawler"
	"github.com/nao1215/placerank/internal/model"
	"github.com/nao1215/placerank/internal/ranking"
)

// Request asks for a basic crawl of one keyword. Either KeywordID or
// Keyword must be set; KeywordID wins when both are.
type Request struct {
	KeywordID int64
	Keyword   string

	// Restaurant overrides the stored classification when non-nil.
	Restaurant *bool

	// Force crawls even when the keyword is fresh.
	Force bool
}

// Run is the state one pipeline execution accumulates.
type Run struct {
	Request Request
	Keyword model.Keyword

	Outcome crawler.Outcome
	Items   []model.ListingItem
	Dropped []crawler.Dropped
	Summary ranking.Summary

	Skipped    bool
	SkipReason string
	StartedAt  time.Time
	Steps      []string
}

// NewRun creates the run of req.
func NewRun(req Request) *Run {
	return &Run{Request: req, StartedAt: time.Now()}
}

// Result is the outcome of one keyword crawl.
type Result struct {
	Success     bool           `json:"success"`
	KeywordID   int64          `json:"keyword_id"`
	Keyword     string         `json:"keyword"`
	ItemsCount  int            `json:"items_count"`
	Dropped     int            `json:"dropped"`
	DetailJobs  int            `json:"detail_jobs"`
	Skipped     bool           `json:"skipped"`
	Termination crawler.Reason `json:"termination,omitempty"`
	Iterations  int            `json:"iterations,omitempty"`
	Elapsed     time.Duration  `json:"elapsed"`

	Error        error  `json:"-"`
	ErrorMessage string `json:"error,omitempty"`
}

// Result summarises the run after the pipeline returned err.
func (r *Run) Result(err error) Result {
	res := Result{
		Success:     err == nil,
		KeywordID:   r.Keyword.ID,
		Keyword:     r.Keyword.Text,
		ItemsCount:  len(r.Items),
		Dropped:     len(r.Dropped),
		DetailJobs:  r.Summary.Enqueued,
		Skipped:     r.Skipped,
		Termination: r.Outcome.Reason,
		Iterations:  r.Outcome.Iterations,
		Elapsed:     time.Since(r.StartedAt),
		Error:       err,
	}
	if res.KeywordID == 0 {
		res.KeywordID = r.Request.KeywordID
	}
	if res.Keyword == "" {
		res.Keyword = r.Request.Keyword
	}
	if err != nil {
		res.ErrorMessage = err.Error()
	}
	return res
}
