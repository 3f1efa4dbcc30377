package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeValidation indicates invalid input data
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeUnauthorized indicates missing or unusable credentials
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	// ErrorTypeForbidden indicates the credentials lack access to the resource
	ErrorTypeForbidden ErrorType = "forbidden"
	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeMethodNotAllowed indicates an unsupported HTTP method
	ErrorTypeMethodNotAllowed ErrorType = "method_not_allowed"
	// ErrorTypeExternal indicates an upstream API or storage failure
	ErrorTypeExternal ErrorType = "external"
	// ErrorTypeRateLimited indicates the client exceeded its request budget
	ErrorTypeRateLimited ErrorType = "rate_limited"
)

// AppError is the base error type for application errors
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newf(t ErrorType, format string, args ...any) error {
	return &AppError{Type: t, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf creates a not found error with formatting
func NotFoundf(format string, args ...any) error {
	return newf(ErrorTypeNotFound, format, args...)
}

// Validationf creates a validation error with formatting
func Validationf(format string, args ...any) error {
	return newf(ErrorTypeValidation, format, args...)
}

// WrapValidation wraps an error as a validation error
func WrapValidation(message string, err error) error {
	return &AppError{Type: ErrorTypeValidation, Message: message, Err: err}
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

// Unauthorizedf creates an unauthorized error with formatting
func Unauthorizedf(format string, args ...any) error {
	return newf(ErrorTypeUnauthorized, format, args...)
}

// WrapUnauthorized wraps an error as an unauthorized error
func WrapUnauthorized(message string, err error) error {
	return &AppError{Type: ErrorTypeUnauthorized, Message: message, Err: err}
}

// Forbiddenf creates a forbidden error with formatting
func Forbiddenf(format string, args ...any) error {
	return newf(ErrorTypeForbidden, format, args...)
}

// MethodNotAllowed reports an HTTP method the endpoint does not serve
func MethodNotAllowed(method string) error {
	return newf(ErrorTypeMethodNotAllowed, "method %s not allowed", method)
}

// Externalf creates an external service error with formatting
func Externalf(format string, args ...any) error {
	return newf(ErrorTypeExternal, format, args...)
}

// WrapExternal wraps an error as an external service error
func WrapExternal(message string, err error) error {
	return &AppError{Type: ErrorTypeExternal, Message: message, Err: err}
}

// RateLimitedf reports a client that has to slow down
func RateLimitedf(format string, args ...any) error {
	return newf(ErrorTypeRateLimited, format, args...)
}

// GetType returns the error type of an error
func GetType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// Is reports whether err carries the given error type anywhere in its chain.
func Is(err error, errorType ErrorType) bool {
	return err != nil && GetType(err) == errorType
}

// Retryable reports whether a later resolution pass may succeed where this
// one failed. Missing and forbidden entities stay that way.
func Retryable(err error) bool {
	switch GetType(err) {
	case ErrorTypeNotFound, ErrorTypeForbidden, ErrorTypeValidation, ErrorTypeMethodNotAllowed:
		return false
	default:
		return err != nil
	}
}
