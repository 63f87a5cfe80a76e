package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}

// Error taxonomy for the materialization engine. Step-local errors are caught
// at the orchestrator boundary per standing order and downgraded to a Failed
// outcome; only ConfigurationError is fatal at startup.

// ValidationError signals a missing required linkage (no matching item or
// customer). Should not occur given read-only collaborators; defensive.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// NotFoundError covers absent address, route or weekday assignment.
// Non-fatal: the cart degrades to empty route fields.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// ConflictError marks a duplicate cart or cart item under the dedup key.
// Treated as a normal skip, never surfaced as a run failure.
type ConflictError struct {
	Key string
}

func (e *ConflictError) Error() string {
	return "conflict on " + e.Key
}

// PersistenceError wraps a failed store operation. Fatal to the current
// standing order only; the run continues.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ConfigurationError is fatal at startup (misconfigured schedule etc).
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Setting, e.Reason)
}
