package core

import "errors"

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// Rejection categories. Specific errors wrap one of these so callers can
// match either the exact cause or its class with errors.Is.
var (
	// ErrValidation covers malformed input: zero prices, wrong attached
	// value, bad rates.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized covers callers acting on something they do not control.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrStateConflict covers requests that are well-formed but invalid for
	// the current state, such as buying an item that is already sold.
	ErrStateConflict = errors.New("state conflict")
)
