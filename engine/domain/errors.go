package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's failure taxonomy.
var (
	// ErrDimensionMismatch is returned by store Add when an embedding's length
	// disagrees with the store's established dimension. Fatal to that single
	// insert only; the store is left unchanged.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyStore is returned by Search when no chunk matches the filter
	// (or the store is empty). Callers treat it as "no context", not a fault:
	// it drives the fallback path.
	ErrEmptyStore = errors.New("no matching chunks in store")

	// ErrUpstreamUnavailable marks failures of an external model call
	// (embedding, generation, fact-check, correction), including timeouts.
	// The pipeline surfaces it rather than substituting a fabricated answer.
	ErrUpstreamUnavailable = errors.New("upstream model unavailable")

	// ErrScoreParse marks a fact-check response that could not be parsed as a
	// number. Recovered internally by defaulting the score; never surfaced.
	ErrScoreParse = errors.New("fact-check score not parsable")

	ErrInvalidQuery  = errors.New("invalid query")
	ErrQueryTooShort = errors.New("query too short")
	ErrUnknownMetric = errors.New("unknown distance metric")
)

// QueryError wraps a sentinel with the field and value that failed validation.
type QueryError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *QueryError) Unwrap() error { return e.Wrapped }

// NewQueryError creates a QueryError.
func NewQueryError(field, value string, wrapped error) *QueryError {
	return &QueryError{Field: field, Value: value, Wrapped: wrapped}
}
