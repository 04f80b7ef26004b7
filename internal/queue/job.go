package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/placerank/internal/model"
)

// Type identifies what a job does.
type Type string

const (
	// TypeBasic crawls the ranking list of one keyword.
	TypeBasic Type = "basic"
	// TypeDetail crawls the detail page of one place.
	TypeDetail Type = "detail"
	// TypeUserDetail crawls a batch of places requested by a user.
	TypeUserDetail Type = "userDetail"
)

// Types lists every job type.
var Types = []Type{TypeBasic, TypeDetail, TypeUserDetail}

// Valid reports whether t is a known job type.
func (t Type) Valid() bool {
	switch t {
	case TypeBasic, TypeDetail, TypeUserDetail:
		return true
	default:
		return false
	}
}

// Priority bounds. Higher runs first.
const (
	MaxPriority = 100
	MinPriority = -100

	// PriorityUser is used for work a user asked for explicitly.
	PriorityUser = 10
)

// Job is one unit of queued work.
type Job struct {
	ID        string   `json:"id"`
	Type      Type     `json:"type"`
	KeywordID int64    `json:"keyword_id,omitempty"`
	Keyword   string   `json:"keyword,omitempty"`
	PlaceID   string   `json:"place_id,omitempty"`
	PlaceIDs  []string `json:"place_ids,omitempty"`
	Priority  int      `json:"priority"`

	// Force bypasses the freshness check of basic jobs.
	Force bool `json:"force,omitempty"`

	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	LastError   string    `json:"last_error,omitempty"`
}

// NewBasicJob returns a job that crawls the ranking of kw.
func NewBasicJob(kw model.Keyword, force bool) Job {
	job := newJob(TypeBasic, 0)
	job.KeywordID = kw.ID
	job.Keyword = kw.Text
	job.Force = force
	if force {
		job.Priority = PriorityUser
	}
	return job
}

// NewDetailJob returns a job that crawls the detail page of one place.
func NewDetailJob(placeID string, priority int) Job {
	job := newJob(TypeDetail, priority)
	job.PlaceID = placeID
	return job
}

// NewUserDetailJob returns a job that crawls a batch of places.
func NewUserDetailJob(placeIDs []string, priority int) Job {
	job := newJob(TypeUserDetail, priority)
	job.PlaceIDs = append([]string(nil), placeIDs...)
	return job
}

func newJob(t Type, priority int) Job {
	return Job{
		ID:         uuid.NewString(),
		Type:       t,
		Priority:   clampPriority(priority),
		EnqueuedAt: time.Now(),
	}
}

// Validate checks that the job carries what its type needs.
func (j Job) Validate() error {
	switch j.Type {
	case TypeBasic:
		if j.KeywordID == 0 && j.Keyword == "" {
			return fmt.Errorf("%w: basic job %s has no keyword", ErrInvalidJob, j.ID)
		}
	case TypeDetail:
		if j.PlaceID == "" {
			return fmt.Errorf("%w: detail job %s has no place id", ErrInvalidJob, j.ID)
		}
	case TypeUserDetail:
		if len(j.PlaceIDs) == 0 {
			return fmt.Errorf("%w: user detail job %s has no place ids", ErrInvalidJob, j.ID)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobType, j.Type)
	}
	return nil
}

// prepare fills the id and enqueue time and clamps the priority.
func (j Job) prepare(now time.Time) Job {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = now
	}
	j.Priority = clampPriority(j.Priority)
	return j
}

func clampPriority(p int) int {
	return min(max(p, MinPriority), MaxPriority)
}
