package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrCircuitOpen is returned when a dependency's circuit breaker rejects a
// call without executing it. It is never retried.
var ErrCircuitOpen = errors.New("circuit open")

// ErrCheckpointNotFound is returned by checkpoint stores for unknown ids.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// TransientError wraps a dependency failure that is safe to retry.
type TransientError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable dependency failure.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// ValidationError reports malformed input. It is surfaced immediately and
// never retried.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// LineageError reports a checkpoint whose parent does not belong to the same
// thread. It aborts the write; the chain is left untouched.
type LineageError struct {
	ThreadID string
	ParentID string
	Reason   string
}

// Error implements the error interface.
func (e *LineageError) Error() string {
	return fmt.Sprintf("checkpoint lineage violation on thread %s (parent %s): %s", e.ThreadID, e.ParentID, e.Reason)
}

// IsRetryable reports whether err may be retried by the retry executor.
// Circuit-open rejections, validation and lineage errors, and context
// cancellation are terminal; everything else is assumed transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return false
	}
	var le *LineageError
	if errors.As(err, &le) {
		return false
	}
	return true
}
