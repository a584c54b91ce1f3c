package errors

import "fmt"

// ErrorCode represents an API error code.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"      // 400
	ErrUnknownService      ErrorCode = "UNKNOWN_SERVICE"      // 400
	ErrNotFound            ErrorCode = "NOT_FOUND"            // 404
	ErrMethodNotAllowed    ErrorCode = "METHOD_NOT_ALLOWED"   // 405
	ErrContractViolation   ErrorCode = "CONTRACT_VIOLATION"   // 502
	ErrUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE" // 503
	ErrInternal            ErrorCode = "INTERNAL"             // 500
)

// AppError represents a structured error with code, status, and details.
type AppError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *AppError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *AppError {
	return &AppError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewUnknownService creates a 400 error for a service name outside the registry.
func NewUnknownService(service string) *AppError {
	return &AppError{
		Code:    ErrUnknownService,
		Status:  400,
		Message: fmt.Sprintf("unknown service: %q", service),
		Details: map[string]any{"service": service},
	}
}

// NewNotFound creates a 404 error for a missing resource.
func NewNotFound(kind, identifier string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewMethodNotAllowed creates a 405 error.
func NewMethodNotAllowed(method string) *AppError {
	return &AppError{
		Code:    ErrMethodNotAllowed,
		Status:  405,
		Message: fmt.Sprintf("method %s not allowed", method),
	}
}

// NewContractViolation creates a 502 error when an upstream payload does not
// match the expected shape.
func NewContractViolation(upstream, msg string) *AppError {
	return &AppError{
		Code:    ErrContractViolation,
		Status:  502,
		Message: fmt.Sprintf("%s returned an unexpected payload: %s", upstream, msg),
		Details: map[string]any{"upstream": upstream},
	}
}

// NewUpstreamUnavailable creates a 503 error for network or non-2xx failures
// of the model runtime, MCP services or the project API.
func NewUpstreamUnavailable(upstream string, err error) *AppError {
	return &AppError{
		Code:    ErrUpstreamUnavailable,
		Status:  503,
		Message: fmt.Sprintf("%s is unavailable", upstream),
		Details: map[string]any{"upstream": upstream},
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *AppError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &AppError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error is an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// StatusOf returns the HTTP status carried by err, or 500.
func StatusOf(err error) int {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Status
	}
	return 500
}
