package model

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeMalformedOperation: an operation failed validation. Raised before
	// reservation, so the submission never consumes a transaction id.
	ErrCodeMalformedOperation ErrorCode = "MALFORMED_OPERATION"

	// ErrCodeLogAppendFailure: the log could not durably persist a write.
	// Fatal to that submission; never retried internally.
	ErrCodeLogAppendFailure ErrorCode = "LOG_APPEND_FAILURE"

	// ErrCodeTimeoutExceeded: an await or snapshot wait ran out of time.
	ErrCodeTimeoutExceeded ErrorCode = "TIMEOUT_EXCEEDED"

	// ErrCodeListenerInvocation: a listener returned an error or panicked.
	ErrCodeListenerInvocation ErrorCode = "LISTENER_INVOCATION"

	// ErrCodeDoubleClose: a listener handle or cursor was closed twice.
	ErrCodeDoubleClose ErrorCode = "DOUBLE_CLOSE"

	// ErrCodeCloseBeforeOpen: closing a handle that was never registered.
	ErrCodeCloseBeforeOpen ErrorCode = "CLOSE_BEFORE_OPEN"

	// ErrCodeLogCorruption: a log record could not be decoded.
	ErrCodeLogCorruption ErrorCode = "LOG_CORRUPTION"
)

// Error is the structured error type shared by the log, index, engine and
// notifier packages.
type Error struct {
	Code    ErrorCode
	Message string

	// TxID identifies the affected transaction, when known.
	TxID int64

	// EntityID identifies the affected entity, when known.
	EntityID string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.TxID != 0 {
		msg += fmt.Sprintf(" (tx=%d)", e.TxID)
	}
	if e.EntityID != "" {
		msg += fmt.Sprintf(" (entity=%s)", e.EntityID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with the given code.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error with an underlying cause.
func WrapError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Code returns the error code carried by err, or "" if err is not an *Error.
func Code(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsMalformed reports whether err is a MALFORMED_OPERATION error.
func IsMalformed(err error) bool { return Code(err) == ErrCodeMalformedOperation }

// IsLogAppendFailure reports whether err is a LOG_APPEND_FAILURE error.
func IsLogAppendFailure(err error) bool { return Code(err) == ErrCodeLogAppendFailure }

// IsTimeout reports whether err is a TIMEOUT_EXCEEDED error.
func IsTimeout(err error) bool { return Code(err) == ErrCodeTimeoutExceeded }

// IsDoubleClose reports whether err is a DOUBLE_CLOSE error.
func IsDoubleClose(err error) bool { return Code(err) == ErrCodeDoubleClose }

// IsCloseBeforeOpen reports whether err is a CLOSE_BEFORE_OPEN error.
func IsCloseBeforeOpen(err error) bool { return Code(err) == ErrCodeCloseBeforeOpen }

// IsLogCorruption reports whether err is a LOG_CORRUPTION error.
func IsLogCorruption(err error) bool { return Code(err) == ErrCodeLogCorruption }
