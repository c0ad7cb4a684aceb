// Package circuit executes variational circuits against execution backends
// and classifies failures so callers can decide between retrying, falling
// through to another backend, or aborting.
package circuit

import (
	"errors"
	"fmt"
)

// BackendUnavailableError means a candidate backend cannot be used right now
// (capacity, offline). Not retryable on that backend; the caller should move
// to the next candidate.
type BackendUnavailableError struct {
	BackendID string
	Reason    string
}

// Error implements the error interface
func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("backend %s unavailable: %s", e.BackendID, e.Reason)
}

// TransientExecutionError means the attempt failed in a way that may succeed
// elsewhere or later (timeout, transient network/service fault). The caller
// may retry on the next candidate within the same iteration.
type TransientExecutionError struct {
	BackendID string
	Reason    string
	Err       error
}

// Error implements the error interface
func (e *TransientExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient execution failure on %s: %s: %v", e.BackendID, e.Reason, e.Err)
	}
	return fmt.Sprintf("transient execution failure on %s: %s", e.BackendID, e.Reason)
}

// Unwrap returns the underlying cause
func (e *TransientExecutionError) Unwrap() error {
	return e.Err
}

// FatalExecutionError means the attempt failed in a way that retrying cannot
// fix (malformed circuit, bad credentials). The whole job must abort.
type FatalExecutionError struct {
	BackendID string
	Reason    string
	Err       error
}

// Error implements the error interface
func (e *FatalExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fatal execution failure on %s: %s: %v", e.BackendID, e.Reason, e.Err)
	}
	return fmt.Sprintf("fatal execution failure on %s: %s", e.BackendID, e.Reason)
}

// Unwrap returns the underlying cause
func (e *FatalExecutionError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err classifies as backend-unavailable
func IsUnavailable(err error) bool {
	var target *BackendUnavailableError
	return errors.As(err, &target)
}

// IsTransient reports whether err classifies as transient
func IsTransient(err error) bool {
	var target *TransientExecutionError
	return errors.As(err, &target)
}

// IsFatal reports whether err classifies as fatal
func IsFatal(err error) bool {
	var target *FatalExecutionError
	return errors.As(err, &target)
}
