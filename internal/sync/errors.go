package sync

import (
	"errors"
	"fmt"
)

// ErrNotFound signals that a record expected to exist is missing. This is
// an assertion failure (a logic defect), not a recoverable condition.
var ErrNotFound = errors.New("record not found")

// ConfigError is a bad or missing credential/identifier. It aborts the
// run before any network call.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "configuration error: " + e.Msg }

// SourceError wraps a network or API failure at the source data provider.
// It aborts the current repository's pipeline; state committed before the
// failure remains valid.
type SourceError struct {
	Op  string
	Err error
}

func (e *SourceError) Error() string { return fmt.Sprintf("source unavailable: %s: %v", e.Op, e.Err) }
func (e *SourceError) Unwrap() error { return e.Err }

// IntegrityError wraps a uniqueness or foreign-key violation surfaced by
// the store. It indicates a logic defect in an upsert batch and is never
// retried.
type IntegrityError struct {
	Op  string
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation: %s: %v", e.Op, e.Err)
}
func (e *IntegrityError) Unwrap() error { return e.Err }
