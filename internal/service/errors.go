package service

import (
	"errors"
	"fmt"
)

// Common sentinel errors for the generation service
var (
	// ErrNotEligible means the plan has no publishable units to generate.
	// This is a state, not a fault: the content owner has not published
	// anything yet.
	ErrNotEligible = errors.New("no eligible units to generate")

	// ErrStatusNotFound means neither a materialized unit nor any
	// generation task exists for the requested (learner, unit) pair.
	ErrStatusNotFound = errors.New("no materialization state for unit")
)

// ServiceError wraps errors from the generation service with operation
// context.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "start_generation").
	Operation string
	// Message is a human-readable description of the error.
	Message string
	// Err is the underlying error that caused the failure.
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("generation service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// newServiceError wraps an error with operation context, passing nil
// through unchanged.
func newServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Operation: operation, Message: message, Err: err}
}
