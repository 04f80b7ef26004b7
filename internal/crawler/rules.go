package crawler

import "github.com/nao1215/placerank/internal/model"

// Reason names the rule that ended a scroll run.
type Reason string

const (
	ReasonHardCap      Reason = "hard_cap"
	ReasonPlateau      Reason = "plateau"
	ReasonStagnation   Reason = "stagnation"
	ReasonIterationCap Reason = "iteration_cap"
)

// Observation is what the rules see after each scroll attempt.
type Observation struct {
	// Iteration is 1 for the first attempt.
	Iteration int

	// Before is counted right after scrolling, After once the settle delay
	// has passed.
	Before model.Counts
	After  model.Counts

	// Previous is the highest count recorded before this attempt.
	Previous model.Counts

	// Settled is the count of the last attempt before this one whose two
	// counts agreed. It does not move while the list is still loading.
	Settled model.Counts

	// Stagnant is the number of consecutive attempts, this one included,
	// in which neither count grew.
	Stagnant int
}

func (o Observation) settled() bool {
	return o.Before.Organic == o.After.Organic
}

// Rule decides whether scrolling should stop.
type Rule interface {
	Reason() Reason
	Stop(o Observation) bool
}

// RuleConfig holds the thresholds of the default rules.
type RuleConfig struct {
	MaxItems              int
	PlateauBatchSize      int
	PlateauRemainderLimit int
	PlateauMinItems       int
	MaxStagnantChecks     int
	MaxScrollIterations   int
}

// DefaultRules returns hard cap, plateau, stagnation and iteration cap, in
// that order.
func DefaultRules(c RuleConfig) []Rule {
	return []Rule{
		HardCap{Max: c.MaxItems},
		Plateau{BatchSize: c.PlateauBatchSize, RemainderLimit: c.PlateauRemainderLimit, MinItems: c.PlateauMinItems},
		Stagnation{Limit: c.MaxStagnantChecks},
		IterationCap{Limit: c.MaxScrollIterations},
	}
}

// HardCap stops once Max organic rows are loaded.
type HardCap struct {
	Max int
}

func (HardCap) Reason() Reason { return ReasonHardCap }

func (r HardCap) Stop(o Observation) bool {
	return o.After.Organic >= r.Max
}

// Plateau stops when the list settled at a count above the last settled
// one and that count is not on a page boundary. Growth that shows up during
// the settle delay is still growth when the next attempt confirms it. The list loads BatchSize rows per page, so 83 or 172 organic
// rows mean the last page came back short and nothing more will load. A
// remainder at or above RemainderLimit is too close to a full page (ads
// take a few slots) to be trusted.
type Plateau struct {
	BatchSize      int
	RemainderLimit int
	MinItems       int
}

func (Plateau) Reason() Reason { return ReasonPlateau }

func (r Plateau) Stop(o Observation) bool {
	n := o.After.Organic
	if n < r.MinItems || !o.settled() || n <= o.Settled.Organic {
		return false
	}
	rem := n % r.BatchSize
	return rem != 0 && rem < r.RemainderLimit
}

// Stagnation stops after Limit attempts in a row without growth.
type Stagnation struct {
	Limit int
}

func (Stagnation) Reason() Reason { return ReasonStagnation }

func (r Stagnation) Stop(o Observation) bool {
	return o.Stagnant >= r.Limit
}

// IterationCap stops after Limit attempts.
type IterationCap struct {
	Limit int
}

func (IterationCap) Reason() Reason { return ReasonIterationCap }

func (r IterationCap) Stop(o Observation) bool {
	return o.Iteration >= r.Limit
}
