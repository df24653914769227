package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidEmail is returned when an email address is malformed.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrEmptyContent is returned when required content is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidGrade is returned when a grade falls outside 0-100.
	ErrInvalidGrade = errors.New("grade must be between 0 and 100")

	// ErrInvalidScore is returned when a similarity score falls outside 0-1.
	ErrInvalidScore = errors.New("plagiarism score must be between 0 and 1")

	// ErrNotFound is returned by repositories when an entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyEnrolled is returned when a student is enrolled twice in a course.
	ErrAlreadyEnrolled = errors.New("student already enrolled")
)
