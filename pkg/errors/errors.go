// Package errors defines the standardized error taxonomy shared by every
// ingestion, parsing and dispatch component.
package errors

import (
	"fmt"
	"time"
)

// Code identifies one of the fixed error kinds this pipeline can raise.
type Code string

const (
	// CodeIo covers filesystem and socket failures.
	CodeIo Code = "IO"
	// CodeJSON covers malformed JSON payloads.
	CodeJSON Code = "JSON"
	// CodeParserNotFound means the registry had no parser for the chosen format.
	CodeParserNotFound Code = "PARSER_NOT_FOUND"
	// CodeSourceNotInitialized means ReadLine was called before a successful Init.
	CodeSourceNotInitialized Code = "SOURCE_NOT_INITIALIZED"
	// CodeLogFormatInvalid means a parser rejected a line as structurally invalid.
	CodeLogFormatInvalid Code = "LOG_FORMAT_INVALID"
	// CodeNetworkError covers transport-level TCP failures.
	CodeNetworkError Code = "NETWORK_ERROR"
)

// AppError is a standardized, structured error carrying enough context for
// the diagnostic log line that reports it.
type AppError struct {
	Code      Code
	Component string
	Operation string
	Message   string
	Cause     error
	Timestamp time.Time
}

// New creates an AppError with no cause attached.
func New(code Code, component, operation, message string) *AppError {
	return &AppError{
		Code:      code,
		Component: component,
		Operation: operation,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Component, e.Operation, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
}

// Unwrap lets errors.Is / errors.As reach the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Wrap attaches a cause and returns the receiver for chaining.
func (e *AppError) Wrap(cause error) *AppError {
	e.Cause = cause
	return e
}

// Is reports whether target shares this error's Code, so callers can write
// errors.Is(err, errors.ParserNotFound("", "")) without reaching for sentinels.
func (e *AppError) Is(target error) bool {
	other, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// Io wraps an underlying filesystem/socket error.
func Io(component, operation string, cause error) *AppError {
	return New(CodeIo, component, operation, "io failure").Wrap(cause)
}

// JSON wraps an underlying JSON decode error.
func JSON(component, operation string, cause error) *AppError {
	return New(CodeJSON, component, operation, "malformed json").Wrap(cause)
}

// ParserNotFound reports the registry had nothing registered for the selected path.
func ParserNotFound(component, operation string) *AppError {
	return New(CodeParserNotFound, component, operation, "no parser found for the given log format")
}

// SourceNotInitialized reports a read before a successful init.
func SourceNotInitialized(component, operation string) *AppError {
	return New(CodeSourceNotInitialized, component, operation, "source not initialized")
}

// LogFormatInvalid reports a structural parse rejection with detail.
func LogFormatInvalid(component, operation, detail string) *AppError {
	return New(CodeLogFormatInvalid, component, operation, detail)
}

// NetworkError reports a transport-level failure with detail.
func NetworkError(component, operation, detail string) *AppError {
	return New(CodeNetworkError, component, operation, detail)
}

// HasCode reports whether err is an *AppError carrying the given code.
func HasCode(err error, code Code) bool {
	ae, ok := err.(*AppError)
	return ok && ae.Code == code
}
