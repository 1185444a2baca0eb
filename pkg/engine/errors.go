package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means the engine could not be reached, timed out or
	// answered with a server error. Callers may retry.
	ErrUnavailable = errors.New("workflow engine unavailable")

	// ErrRejected means the engine answered with a client error. Retrying
	// without changing the request will not help.
	ErrRejected = errors.New("workflow engine rejected the request")

	// ErrNotFound is the 404 flavour of ErrRejected.
	ErrNotFound = errors.New("workflow not found on engine")

	// ErrInvalidPath is returned for trigger paths that are empty or try to
	// escape the webhook prefix.
	ErrInvalidPath = errors.New("invalid trigger path")

	// ErrResponseTooLarge is returned instead of a truncated body.
	ErrResponseTooLarge = errors.New("engine response too large")
)

// Error describes a failed call to the engine.
type Error struct {
	Op         string // Operation being performed (e.g., "GetWorkflow", "TriggerWebhook")
	StatusCode int    // HTTP status, zero for transport failures
	Message    string // Message reported by the engine, if any
	Err        error  // Underlying error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("engine %s: status %d: %s: %v", e.Op, e.StatusCode, e.Message, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("engine %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes a not-found error also match ErrRejected.
func (e *Error) Is(target error) bool {
	return target == ErrRejected && errors.Is(e.Err, ErrNotFound)
}

// IsUnavailable checks if an error is retryable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsRejected checks if an error was a client error reported by the engine.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func statusError(op string, status int, message string) *Error {
	err := &Error{Op: op, StatusCode: status, Message: message}

	switch {
	case status == 404:
		err.Err = ErrNotFound
	case status >= 500:
		err.Err = ErrUnavailable
	default:
		err.Err = ErrRejected
	}

	return err
}
