package app

import "errors"

// Workflow stage errors. Run wraps the underlying cause with one of these so
// callers can tell a lookup problem from a calculation or extraction problem.
var (
	ErrProcess     = errors.New("process lookup failed")
	ErrMethod      = errors.New("impact method lookup failed")
	ErrCalculation = errors.New("calculation failed")
	ErrExtraction  = errors.New("reading impact results failed")
)
