package pipeline

import "errors"

var (
	// ErrSkip ends a pipeline early without failing the run.
	ErrSkip = errors.New("run skipped")

	// ErrNoKeyword is returned for a request without keyword id or text.
	ErrNoKeyword = errors.New("request has no keyword")
)
