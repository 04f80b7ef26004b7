package queue

import "errors"

var (
	// ErrNoHandler is returned when a job type has no registered handler.
	ErrNoHandler = errors.New("no handler registered for job type")

	// ErrUnknownJobType is returned for a job whose type is not one of the
	// known types.
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrInvalidJob is returned when a job lacks the fields its type needs.
	ErrInvalidJob = errors.New("invalid job")
)
