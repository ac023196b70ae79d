package pipeline

import (
	"context"
	"errors"
	"net"
)

// Pipeline errors.
var (
	// ErrInvalidTransition is returned for a move the state machine forbids.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrBatchHalted is the cancellation cause after a fatal batch error.
	ErrBatchHalted = errors.New("batch halted")
	// ErrValidationRejected marks a unit whose generated output failed validation.
	ErrValidationRejected = errors.New("validation rejected generated output")
	// ErrNoUnits is returned when a document holds no processable unit.
	ErrNoUnits = errors.New("document has no component instances")
)

// TransientError marks a failure of an external call as worth retrying.
type TransientError struct {
	Err error
}

// Error implements error.
func (transientErr *TransientError) Error() string {
	return "transient: " + transientErr.Err.Error()
}

// Unwrap returns the wrapped error.
func (transientErr *TransientError) Unwrap() error {
	return transientErr.Err
}

// Transient wraps err as a *TransientError. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}

	return &TransientError{Err: err}
}

// IsTransient reports whether err is worth retrying: an explicit
// *TransientError, a network timeout, or a per-call deadline.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}
