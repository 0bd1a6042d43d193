package api

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is an error that carries an explicit HTTP status. Processors
// and adapters return it for expected failures (missing entries, rejected
// payloads, forbidden writes); the dispatcher surfaces the status verbatim.
type StatusError struct {
	Status  int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, msg, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, msg)
}

// Unwrap returns the wrapped cause.
func (e *StatusError) Unwrap() error {
	return e.Err
}

// NewStatusError creates a StatusError with the given status and message.
func NewStatusError(status int, message string) *StatusError {
	return &StatusError{Status: status, Message: message}
}

// WrapStatusError attaches a status and message to an underlying cause.
func WrapStatusError(status int, message string, err error) *StatusError {
	return &StatusError{Status: status, Message: message, Err: err}
}

// Errorf creates a StatusError with a formatted message.
func Errorf(status int, format string, args ...any) *StatusError {
	return &StatusError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// StatusOf extracts the HTTP status from err if any error in its chain is
// a *StatusError.
func StatusOf(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status, true
	}
	return 0, false
}

// IsClientError reports whether status is in the 4xx range.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}

// NewBadRequestError creates a 400 error.
func NewBadRequestError(message string) *StatusError {
	return NewStatusError(http.StatusBadRequest, message)
}

// NewForbiddenError creates a 403 error.
func NewForbiddenError(message string) *StatusError {
	return NewStatusError(http.StatusForbidden, message)
}

// NewNotFoundError creates a 404 error.
func NewNotFoundError(message string) *StatusError {
	return NewStatusError(http.StatusNotFound, message)
}

// NewConflictError creates a 409 error.
func NewConflictError(message string) *StatusError {
	return NewStatusError(http.StatusConflict, message)
}

// NewUnsupportedMediaTypeError creates a 415 error.
func NewUnsupportedMediaTypeError(message string) *StatusError {
	return NewStatusError(http.StatusUnsupportedMediaType, message)
}

// NewServerError creates a 500 error.
func NewServerError(message string) *StatusError {
	return NewStatusError(http.StatusInternalServerError, message)
}
