package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// Precondition error codes
const (
	ErrRunnerNotFound      ErrorCode = "RUNNER_NOT_FOUND"
	ErrTypeMismatch        ErrorCode = "TYPE_MISMATCH"
	ErrStepConfigMissing   ErrorCode = "STEP_CONFIG_MISSING"
	ErrScorerNotFound      ErrorCode = "SCORER_NOT_FOUND"
	ErrDefinitionNotFound  ErrorCode = "DEFINITION_NOT_FOUND"
	ErrDuplicateRegistered ErrorCode = "DUPLICATE_REGISTRATION"
	ErrInvalidInput        ErrorCode = "INVALID_INPUT"
)

// Pipeline error codes
const (
	ErrParseFailure    ErrorCode = "PARSE_FAILURE"
	ErrRerankerMissing ErrorCode = "RERANKER_MISSING"
	ErrRunNotFound     ErrorCode = "RUN_NOT_FOUND"
	ErrUpstreamError   ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError   ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// GetErrorCode extracts the error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}
