package scrape

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by store reads when no row matches.
var ErrNotFound = errors.New("not found")

// UnknownJobTypeError is returned when a job type matches no registered
// strategy. It is raised synchronously at enqueue time, before any browser
// session is opened.
type UnknownJobTypeError struct {
	Type string
}

func (e *UnknownJobTypeError) Error() string {
	return fmt.Sprintf("unknown job type %q", e.Type)
}

// NavigationExhaustedError means every candidate URL for a logical target
// failed its success predicate or timed out. It carries the last underlying
// error and is terminal for the job.
type NavigationExhaustedError struct {
	Target     string
	Candidates int
	Last       error
}

func (e *NavigationExhaustedError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("navigation exhausted for %s after %d candidates: %v", e.Target, e.Candidates, e.Last)
	}
	return fmt.Sprintf("navigation exhausted for %s after %d candidates", e.Target, e.Candidates)
}

func (e *NavigationExhaustedError) Unwrap() error {
	return e.Last
}

// BatchExtractionError means the primary extractor failed wholesale (as
// opposed to a single malformed unit, which is skipped in place). The
// orchestrator recovers by invoking the strategy's fallback extractor.
type BatchExtractionError struct {
	Source string
	Err    error
}

func (e *BatchExtractionError) Error() string {
	return fmt.Sprintf("batch extraction failed for source %s: %v", e.Source, e.Err)
}

func (e *BatchExtractionError) Unwrap() error {
	return e.Err
}
