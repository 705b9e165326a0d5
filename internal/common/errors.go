package common

import (
	"errors"
	"fmt"
)

// Domain errors - use errors.Is() to check
var (
	// Generic errors
	ErrInternal   = errors.New("internal error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("already exists")
	ErrBadRequest = errors.New("bad request")

	// Resource-specific errors
	ErrJobNotFound        = fmt.Errorf("job %w", ErrNotFound)
	ErrRestaurantNotFound = fmt.Errorf("restaurant %w", ErrNotFound)
	ErrQueueItemNotFound  = fmt.Errorf("queue item %w", ErrNotFound)

	// Admission errors
	ErrDuplicateJob = errors.New("job already queued or in progress for this subject")
	ErrItemInFlight = errors.New("queue item is already processing and cannot be cancelled")
	ErrQueueStopped = errors.New("queue is not accepting work")
	ErrUnknownType  = errors.New("unknown job type")

	// ErrJobCancelled marks work stopped by a cooperative cancellation
	// request rather than a failure.
	ErrJobCancelled = errors.New("job cancelled")

	// Validation errors
	ErrValidation = errors.New("validation error")
)

// ValidationError represents a validation error with field details
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is implements errors.Is for ValidationError
func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// WrapNotFound wraps an error as a not found error with context
func WrapNotFound(resource string, err error) error {
	return fmt.Errorf("%s: %w", resource, errors.Join(ErrNotFound, err))
}

// WrapInternal wraps an error as an internal error with context
func WrapInternal(operation string, err error) error {
	return fmt.Errorf("%s: %w", operation, errors.Join(ErrInternal, err))
}

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if error is a conflict error
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsDuplicateJob checks if error is a duplicate admission rejection
func IsDuplicateJob(err error) bool {
	return errors.Is(err, ErrDuplicateJob)
}

// IsJobCancelled checks if error reports cooperative cancellation
func IsJobCancelled(err error) bool {
	return errors.Is(err, ErrJobCancelled)
}

// IsValidation checks if error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
