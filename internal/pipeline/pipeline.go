package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Step is one stage of a crawl. Steps run in order, each receiving the run
// filled by the previous ones.
type Step interface {
	// Do executes the step. Returning ErrSkip ends the pipeline without
	// an error; any other error fails the run.
	Do(ctx context.Context, run *Run) error

	// Name returns the step's name for logging and progress.
	Name() string
}

// Claimer tracks running crawls by keyword and refuses a second crawl of
// the same keyword. progress.Store implements it.
type Claimer interface {
	Start(key, keyword string) error
	Update(key, stage string)
	Finish(key string)
}

// ProgressKey identifies the crawl of a keyword in a Claimer.
func ProgressKey(keywordID int64) string {
	return fmt.Sprintf("keyword:%d", keywordID)
}

// Pipeline executes steps in sequence.
type Pipeline struct {
	steps []Step

	logger *slog.Logger

	// claims holds the keyword from the step that resolved it until the
	// pipeline returns.
	claims Claimer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithClaims claims the keyword as soon as a step has resolved it, by id,
// so crawls requested by text and by id exclude each other. The step each
// claimed run enters is reported to c.
func WithClaims(c Claimer) Option {
	return func(p *Pipeline) {
		p.claims = c
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps in sequence and stops at the first error.
// Cancellation is checked before each step; steps handle their own
// timeouts.
func (p *Pipeline) Execute(ctx context.Context, run *Run) error {
	var claimed string
	defer func() {
		if claimed != "" {
			p.claims.Finish(claimed)
		}
	}()

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"keyword", run.Request.Keyword,
				"reason", err,
			)
			return err
		}

		if claimed != "" {
			p.claims.Update(claimed, step.Name())
		}
		p.logger.Debug("executing step",
			"step", step.Name(),
			"keyword", run.Request.Keyword,
			"keyword_id", run.Keyword.ID,
		)

		err := step.Do(ctx, run)
		run.Steps = append(run.Steps, step.Name())

		if errors.Is(err, ErrSkip) {
			run.Skipped = true
			p.logger.Info("run skipped",
				"step", step.Name(),
				"keyword", run.Keyword.Text,
				"reason", run.SkipReason,
			)
			return nil
		}
		if err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"keyword", run.Keyword.Text,
				"keyword_id", run.Keyword.ID,
				"error", err,
			)
			return err
		}

		if claimed == "" && p.claims != nil && run.Keyword.ID != 0 {
			key := ProgressKey(run.Keyword.ID)
			if err := p.claims.Start(key, run.Keyword.Text); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			claimed = key
		}
	}

	return nil
}
