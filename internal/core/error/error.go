package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// DatabaseErrorMessage describes HR data store failures.
	DatabaseErrorMessage = "database operation failed"
	// NotFoundMessage describes a missing record.
	NotFoundMessage = "record not found"
	// ThreadForbiddenMessage rejects a turn on a thread another employee owns.
	ThreadForbiddenMessage = "thread belongs to another employee"
)

// ErrNotFound is the sentinel wrapped by repositories when a record does not exist.
var ErrNotFound = errors.New("not found")

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// HTTPStatus maps any error produced by the assistant onto a response status.
// Typed turn errors are checked first so that a schema violation wrapped in an
// ExecutionError still surfaces as a bad gateway rather than a generic 500.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var idErr *IdentityRequiredError
	if errors.As(err, &idErr) {
		return http.StatusBadRequest
	}
	var schemaErr *OutputSchemaError
	if errors.As(err, &schemaErr) {
		return http.StatusBadGateway
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// PublicMessage returns a message that is safe to show to API callers.
func PublicMessage(err error) string {
	var idErr *IdentityRequiredError
	if errors.As(err, &idErr) {
		return idErr.Error()
	}
	var schemaErr *OutputSchemaError
	if errors.As(err, &schemaErr) {
		return "routing classification failed"
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return SystemErrorMessage
}
