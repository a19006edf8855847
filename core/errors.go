package core

import (
	"errors"
	"fmt"
)

// The error taxonomy separates failures by how the orchestrator must react:
// transient failures are retried with backoff, permanent failures surface as
// stage or result failures without retry, and validation failures reject the
// job before any external call is made.

// TransientError wraps a retryable external failure (timeout, rate limit).
type TransientError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

// Unwrap exposes the cause.
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps a non-retryable external failure (malformed request,
// auth).
type PermanentError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent failure in %s: %v", e.Op, e.Err)
}

// Unwrap exposes the cause.
func (e *PermanentError) Unwrap() error { return e.Err }

// ValidationError marks a bad job specification, rejected before any
// external call. The job is never created.
type ValidationError struct {
	Reason string
}

// Error implements error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid job specification: %s", e.Reason)
}

// Transient tags an error as retryable.
func Transient(op string, err error) error { return &TransientError{Op: op, Err: err} }

// Permanent tags an error as not retryable.
func Permanent(op string, err error) error { return &PermanentError{Op: op, Err: err} }

// IsRetryable reports whether the orchestrator may retry the failed call.
// Unclassified errors default to retryable so flaky providers get their
// bounded retries; permanent and validation failures never do.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		return false
	}
	var val *ValidationError
	return !errors.As(err, &val)
}

// ErrJobNotFound is returned by JobStore implementations for unknown ids.
var ErrJobNotFound = errors.New("job not found")

// ErrCacheMiss is returned by VerificationCache implementations when no
// unexpired verdict exists for a fingerprint.
var ErrCacheMiss = errors.New("verification cache miss")
