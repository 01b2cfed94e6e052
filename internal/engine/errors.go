package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents a failure of the scenario machinery itself, as
// opposed to an error raised by the pool under test.
//
// Runtime errors include:
//   - Actor failure: a task scheduled on a worker returned an error or panicked
//   - Timeout: a join or an event wait exceeded its bound
//   - Unsupported operation: a scenario named an operation outside the vocabulary
//   - Unknown actor: an operation referenced a worker that was never started
//
// Err carries the underlying cause so errors.Is and errors.As reach it.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Actor names the worker involved, if any.
	Actor string

	// Err is the wrapped cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeActorFailure indicates a scheduled task failed on a worker.
	ErrCodeActorFailure RuntimeErrorCode = "ACTOR_FAILURE"

	// ErrCodeTimeout indicates a bounded wait elapsed.
	ErrCodeTimeout RuntimeErrorCode = "TIMEOUT"

	// ErrCodeUnsupportedOperation indicates an operation name outside the vocabulary.
	ErrCodeUnsupportedOperation RuntimeErrorCode = "UNSUPPORTED_OPERATION"

	// ErrCodeUnknownActor indicates a reference to a worker that does not exist.
	ErrCodeUnknownActor RuntimeErrorCode = "UNKNOWN_ACTOR"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Actor != "" {
		msg = fmt.Sprintf("%s (actor=%s)", msg, e.Actor)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsActorFailure returns true if err is, or wraps, an actor failure.
func IsActorFailure(err error) bool {
	return hasCode(err, ErrCodeActorFailure)
}

// IsTimeout returns true if err is, or wraps, a runtime timeout.
// Pool wait-queue timeouts are not runtime timeouts.
func IsTimeout(err error) bool {
	return hasCode(err, ErrCodeTimeout)
}

// IsUnsupportedOperation returns true if err is, or wraps, an unsupported operation error.
func IsUnsupportedOperation(err error) bool {
	return hasCode(err, ErrCodeUnsupportedOperation)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// NewActorFailure wraps the error a task raised on the named worker.
func NewActorFailure(actor string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeActorFailure,
		Message: "scheduled operation failed",
		Actor:   actor,
		Err:     cause,
	}
}

// NewTimeoutError reports that waiting for what elapsed.
func NewTimeoutError(actor, what string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeTimeout,
		Message: fmt.Sprintf("timed out waiting for %s", what),
		Actor:   actor,
	}
}

// NewUnsupportedOperationError reports an operation name outside the vocabulary.
func NewUnsupportedOperationError(name string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnsupportedOperation,
		Message: fmt.Sprintf("unsupported operation %q", name),
	}
}

// NewUnknownActorError reports a reference to a worker that was never started.
func NewUnknownActorError(actor string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownActor,
		Message: "no worker with this name has been started",
		Actor:   actor,
	}
}
