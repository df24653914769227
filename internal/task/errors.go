package task

import (
	"errors"
	"fmt"
)

// Common errors returned by the task engine
var (
	// ErrValidation is returned when task parameters do not match the shape
	// expected for the task type. It is never retried.
	ErrValidation = errors.New("invalid task parameters")

	// ErrUnknownTaskType is returned when no handler is registered for a type.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrNotFound is returned when a task id does not exist.
	ErrNotFound = errors.New("task not found")

	// ErrDuplicateID is returned when inserting a record whose id already exists.
	ErrDuplicateID = errors.New("task id already exists")

	// ErrInvalidTransition is returned when a status change is not allowed
	// from the record's current status.
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrTimeout is returned when a handler exceeds its execution budget.
	// It is retried like a transient failure.
	ErrTimeout = errors.New("task execution timed out")

	// ErrWorkerLost marks a record found stuck in processing.
	ErrWorkerLost = errors.New("task worker lost")

	ErrNilStore    = errors.New("task store cannot be nil")
	ErrNilRegistry = errors.New("task registry cannot be nil")
	ErrNilQueue    = errors.New("task queue cannot be nil")
	ErrNilManager  = errors.New("task manager cannot be nil")
	ErrNilLogger   = errors.New("logger cannot be nil")
)

// PermanentError marks a handler failure that must not be retried, for
// example because the referenced entity no longer exists.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent failure: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// TransientError marks a handler failure worth retrying, such as a storage
// or network blip. Unclassified errors are treated the same way.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the Manager records it without further retries.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Transient wraps err so the Manager retries it under the retry policy.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsPermanent reports whether err should skip the retry path. Validation and
// unknown-type errors are permanent even when not explicitly wrapped.
func IsPermanent(err error) bool {
	var perm *PermanentError
	if errors.As(err, &perm) {
		return true
	}
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrUnknownTaskType)
}
