package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/coursework-jobs/internal/api/shared"
	"github.com/phrazzld/coursework-jobs/internal/task"
)

// MapErrorToStatusCode maps engine errors to HTTP status codes without
// exposing their text.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, task.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, task.ErrValidation),
		errors.Is(err, task.ErrUnknownTaskType),
		errors.Is(err, shared.ErrEmptyBody):
		return http.StatusBadRequest

	case errors.Is(err, task.ErrInvalidTransition),
		errors.Is(err, task.ErrDuplicateID):
		return http.StatusConflict

	case errors.Is(err, task.ErrQueueClosed):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"
	case errors.Is(err, task.ErrNotFound):
		return "Task not found"
	case errors.Is(err, task.ErrUnknownTaskType):
		return "Unknown task type"
	case errors.Is(err, task.ErrValidation):
		return "Invalid task parameters"
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"
	case errors.Is(err, task.ErrInvalidTransition):
		return "Task is not in a state that allows this operation"
	case errors.Is(err, task.ErrDuplicateID):
		return "Task already exists"
	case errors.Is(err, task.ErrQueueClosed):
		return "Task engine is shutting down"
	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns a validator error into a short message
// naming the first offending field.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("Invalid %s: %s", jsonFieldName(fe.Field()), getValidationTagMessage(fe.Tag()))
	}
	return "Validation error"
}

func jsonFieldName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "email":
		return "invalid email format"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the status and safe message for err and logs the
// redacted detail. A non-empty fallback replaces the generic 500 message.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		msg = fallback
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err)
}
