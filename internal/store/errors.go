package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	ErrSubmissionNotFound = fmt.Errorf("%w: submission", ErrNotFound)
	ErrAssignmentNotFound = fmt.Errorf("%w: assignment", ErrNotFound)
	ErrCourseNotFound     = fmt.Errorf("%w: course", ErrNotFound)
	ErrStudentNotFound    = fmt.Errorf("%w: student", ErrNotFound)

	// ErrEnrollmentExists indicates the student is already enrolled in the course.
	ErrEnrollmentExists = fmt.Errorf("%w: enrollment", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
