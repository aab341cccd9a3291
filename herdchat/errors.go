package herdchat

import (
	"errors"
	"fmt"
)

// ErrorCode represents a categorized error type.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota
	ErrorInvalidConfig
	ErrorNotConnected
	ErrorDial
	ErrorSend
	ErrorConnection
	ErrorFrameDecode
	ErrorMessageNotFound
	ErrorMessageState
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "unknown"
	case ErrorInvalidConfig:
		return "invalid_config"
	case ErrorNotConnected:
		return "not_connected"
	case ErrorDial:
		return "dial_error"
	case ErrorSend:
		return "send_error"
	case ErrorConnection:
		return "connection_error"
	case ErrorFrameDecode:
		return "frame_decode_error"
	case ErrorMessageNotFound:
		return "message_not_found"
	case ErrorMessageState:
		return "message_state_error"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// ChatError is a structured error with code and context.
type ChatError struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s (wrapped: %v)", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *ChatError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface for error comparison.
func (e *ChatError) Is(target error) bool {
	t, ok := target.(*ChatError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new ChatError with the given code and message.
func NewError(code ErrorCode, message string) *ChatError {
	return &ChatError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with a ChatError.
func WrapError(code ErrorCode, message string, err error) *ChatError {
	return &ChatError{
		Code:    code,
		Message: message,
		Wrapped: err,
	}
}

// IsNotConnected reports whether err indicates a send on a connection that
// is not open. It marks a caller-side usage error, not a transport failure.
func IsNotConnected(err error) bool {
	var ce *ChatError
	return errors.As(err, &ce) && ce.Code == ErrorNotConnected
}

// IsConnectionError reports whether err is a transport-level failure that
// the reconnect policy handles.
func IsConnectionError(err error) bool {
	var ce *ChatError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == ErrorDial || ce.Code == ErrorSend || ce.Code == ErrorConnection
}
