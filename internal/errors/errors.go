// Package errors provides coded domain errors for the change feed.
//
// Usage:
//
//	// In constructors - return typed errors
//	if name == "" {
//	    return Record{}, errors.InvalidArgument("name must not be empty")
//	}
//
//	// In callers - check with errors.Is
//	if errors.Is(err, errors.ErrTerminalFault) {
//	    log.Error("feed ended", "error", err)
//	}
//
//	// Or switch on the Code
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    switch domainErr.Code {
//	    case errors.CodeInvalidConfiguration:
//	        ...
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the module.
const (
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeInvalidConfiguration Code = "INVALID_CONFIGURATION"
	CodeAlreadyStarted       Code = "ALREADY_STARTED"
	CodeTerminalFault        Code = "TERMINAL_FAULT"
	CodeOverflow             Code = "OVERFLOW"
	CodeClosed               Code = "CLOSED"
)

// Recoverable reports whether a failure with this code may be retried
// without caller intervention. Only overflow qualifies.
func (c Code) Recoverable() bool {
	return c == CodeOverflow
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors for use with errors.Is().
var (
	ErrInvalidArgument      = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrInvalidConfiguration = &Error{Code: CodeInvalidConfiguration, Message: "invalid configuration"}
	ErrAlreadyStarted       = &Error{Code: CodeAlreadyStarted, Message: "already started"}
	ErrTerminalFault        = &Error{Code: CodeTerminalFault, Message: "terminal fault"}
	ErrOverflow             = &Error{Code: CodeOverflow, Message: "notification buffer overflow"}
	ErrClosed               = &Error{Code: CodeClosed, Message: "closed"}
)

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *Error {
	return &Error{Code: CodeInvalidArgument, Message: msg}
}

// InvalidArgumentf creates an invalid argument error with formatted message.
func InvalidArgumentf(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// InvalidConfiguration creates an invalid configuration error.
func InvalidConfiguration(msg string) *Error {
	return &Error{Code: CodeInvalidConfiguration, Message: msg}
}

// InvalidConfigurationf creates an invalid configuration error with formatted message.
func InvalidConfigurationf(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidConfiguration, Message: fmt.Sprintf(format, args...)}
}

// InvalidConfigurationWithDetails creates an invalid configuration error with details.
func InvalidConfigurationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeInvalidConfiguration, Message: msg, Details: details}
}

// AlreadyStarted creates an already started error.
func AlreadyStarted(msg string) *Error {
	return &Error{Code: CodeAlreadyStarted, Message: msg}
}

// TerminalFault wraps the failure that ended a stream.
func TerminalFault(cause error, msg string) *Error {
	return &Error{Code: CodeTerminalFault, Message: msg, cause: cause}
}

// Overflow creates an overflow error.
func Overflow(msg string) *Error {
	return &Error{Code: CodeOverflow, Message: msg}
}

// Closed creates a closed error.
func Closed(msg string) *Error {
	return &Error{Code: CodeClosed, Message: msg}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
