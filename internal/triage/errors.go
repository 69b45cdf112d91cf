package triage

import (
	"errors"

	"basegraph.app/triage/internal/service/ticketing"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ProcessError tells the queue whether a failed pass is worth retrying.
type ProcessError struct {
	Err       error
	Retryable bool
}

func (e *ProcessError) Error() string {
	return e.Err.Error()
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error) *ProcessError {
	return &ProcessError{Err: err, Retryable: true}
}

func NewFatalError(err error) *ProcessError {
	return &ProcessError{Err: err, Retryable: false}
}

// classify wraps upstream failures: transient ones retry, the rest do not.
func classify(err error) *ProcessError {
	var pe *ProcessError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, ticketing.ErrTransient) {
		return NewRetryableError(err)
	}
	return NewFatalError(err)
}

// IsRetryable reports whether err came from a pass that may succeed on retry.
func IsRetryable(err error) bool {
	var pe *ProcessError
	return errors.As(err, &pe) && pe.Retryable
}
