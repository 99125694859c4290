package service

import (
	"errors"
	"fmt"
)

// ErrEmptyChain is returned by chain verification when the shipment has no
// recorded events.
var ErrEmptyChain = errors.New("shipment has no recorded events")

// ValidationError reports malformed input rejected before any store access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PersistenceError wraps a store failure so callers can distinguish it from
// input problems. Write-path persistence failures are never swallowed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
