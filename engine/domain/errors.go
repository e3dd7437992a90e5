package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors. NotFound is deliberately absent: a missing fitment is a
// nil record, not an error.
var (
	ErrInvalidSelector     = errors.New("invalid vehicle selector")
	ErrYearOutOfRange      = errors.New("year out of range")
	ErrMissingField        = errors.New("missing required field")
	ErrInvalidRecord       = errors.New("invalid record")
	ErrSourceUnavailable   = errors.New("source unavailable")
	ErrSuperseded          = errors.New("selection superseded")
	ErrUnsupportedFormat   = errors.New("unsupported format")
	ErrUnidentifiedProduct = errors.New("product has no id, sku or name")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// SourceError records which source failed. It unwraps to both the cause and
// ErrSourceUnavailable.
type SourceError struct {
	Source string
	Op     string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %s: %v", e.Source, e.Op, e.Err)
}

func (e *SourceError) Unwrap() []error { return []error{ErrSourceUnavailable, e.Err} }
