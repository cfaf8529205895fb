package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the
	// store. Entity-specific variants below wrap it so callers can match
	// either the generic or the specific error.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity.
	ErrDuplicate = errors.New("entity already exists")

	// ErrUpdateFailed is returned when an update operation fails, for
	// example because the entity does not exist or the update violates a
	// constraint.
	ErrUpdateFailed = errors.New("update failed")

	// ErrTransactionFailed is returned when a database transaction fails to
	// commit or an operation within it fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrUnitNotFound indicates the requested curriculum unit does not exist.
	ErrUnitNotFound = fmt.Errorf("%w: curriculum unit", ErrNotFound)

	// ErrContentItemNotFound indicates the requested content item does not exist.
	ErrContentItemNotFound = fmt.Errorf("%w: content item", ErrNotFound)

	// ErrLearnerUnitNotFound indicates the requested learner unit does not exist.
	ErrLearnerUnitNotFound = fmt.Errorf("%w: learner unit", ErrNotFound)

	// ErrLearnerItemNotFound indicates the requested learner content item does not exist.
	ErrLearnerItemNotFound = fmt.Errorf("%w: learner content item", ErrNotFound)

	// ErrTaskNotFound indicates the requested generation task does not exist.
	ErrTaskNotFound = fmt.Errorf("%w: generation task", ErrNotFound)

	// ErrProfileNotFound indicates no profile snapshot exists for the learner.
	ErrProfileNotFound = fmt.Errorf("%w: profile", ErrNotFound)

	// ErrLearnerUnitExists indicates a materialized copy already exists for
	// the (learner, source unit) pair.
	ErrLearnerUnitExists = fmt.Errorf("%w: learner unit", ErrDuplicate)

	// ErrDuplicateTask indicates a non-terminal task already exists for the
	// same (learner, unit, kind) tuple. Enqueue callers treat this as a
	// suppressed no-op, not a failure.
	ErrDuplicateTask = fmt.Errorf("%w: generation task", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// StoreError is a custom error type for store-specific errors with
// additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "learner_unit", "task")
	Operation string // The operation that failed (e.g., "create", "update")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation on %s failed: %s: %v", e.Operation, e.Entity, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given context.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
