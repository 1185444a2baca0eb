// Package services provides standardized error types for service layer operations.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/flowmirror/pkg/engine"
	"github.com/dukex/flowmirror/pkg/persistence"
)

var (
	// Upstream errors. Unavailable is retryable, Rejected is not.
	ErrUpstreamUnavailable = errors.New("workflow engine unavailable")
	ErrUpstreamRejected    = errors.New("workflow engine rejected the request")

	// Lookup errors (404 Not Found).
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

	// Caller-correctable errors (400 Bad Request).
	ErrInvalidRequest      = errors.New("invalid request")
	ErrNoTriggerConfigured = errors.New("workflow has no trigger configured")

	// Access errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Sync errors. A partial batch failure is reported, never fatal.
	ErrPartialBatchFailure = errors.New("some workflows failed to sync")
	ErrSyncInProgress      = errors.New("a sync run is already in progress")
	ErrBaseNameCollision   = errors.New("backup name already belongs to another workflow")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func IsUpstreamUnavailable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}

func IsUpstreamRejected(err error) bool {
	return errors.Is(err, ErrUpstreamRejected)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsValidationError checks if an error is one the caller can fix by changing the request.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrNoTriggerConfigured)
}

func NewValidationError(op, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    "validation_error",
		Message: message,
		Err:     err,
	}
}

// translateEngineError maps engine client errors onto the service taxonomy.
// A caller that went away keeps its context error.
func translateEngineError(op string, err error) error {
	var engineErr *engine.Error

	message := ""
	if errors.As(err, &engineErr) {
		message = engineErr.Message
	}

	switch {
	case errors.Is(err, context.Canceled):
		return err
	case engine.IsNotFound(err):
		return &ServiceError{Op: op, Code: "not_found", Message: message, Err: fmt.Errorf("%w: %w", ErrWorkflowNotFound, err)}
	case errors.Is(err, engine.ErrInvalidPath):
		return NewValidationError(op, "invalid trigger path", fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	case engine.IsRejected(err):
		return &ServiceError{Op: op, Code: "upstream_rejected", Message: message, Err: fmt.Errorf("%w: %w", ErrUpstreamRejected, err)}
	default:
		return &ServiceError{Op: op, Code: "upstream_unavailable", Message: message, Err: fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)}
	}
}
