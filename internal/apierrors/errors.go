package apierrors

import (
	"fmt"
	"net/http"
)

// Machine-readable error codes returned to API clients
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeNotFound          = "NOT_FOUND"
	CodeStateConflict     = "STATE_CONFLICT"
	CodeTooManyRecipients = "TOO_MANY_RECIPIENTS"
	CodeInternalError     = "INTERNAL_ERROR"
)

// APIError carries an HTTP status plus a sanitized client-facing message.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NotFound builds a 404 error
func NotFound(message string) *APIError {
	return &APIError{StatusCode: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

// BadRequest builds a 400 error
func BadRequest(code, message string) *APIError {
	return &APIError{StatusCode: http.StatusBadRequest, Code: code, Message: message}
}

// Conflict builds a 409 error for state-machine violations
func Conflict(message string) *APIError {
	return &APIError{StatusCode: http.StatusConflict, Code: CodeStateConflict, Message: message}
}

// InternalError builds a sanitized 500 error - never exposes internal details
func InternalError() *APIError {
	return &APIError{
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternalError,
		Message:    "An internal error occurred. Please try again later.",
	}
}
