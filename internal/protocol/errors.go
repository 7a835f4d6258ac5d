// ABOUTME: Protocol error codes and the typed error carried through dispatch.
// ABOUTME: Codes follow the JSON-RPC convention with dialgate-specific additions.

package protocol

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a protocol-level failure class.
type ErrorCode int

const (
	// CodeParseError indicates the inbound bytes could not be decoded at all.
	CodeParseError ErrorCode = -32700
	// CodeInvalidRequest indicates a structurally invalid envelope (bad version, missing method).
	CodeInvalidRequest ErrorCode = -32600
	// CodeMethodNotFound indicates the method name is not in the supported set.
	CodeMethodNotFound ErrorCode = -32601
	// CodeInvalidParams indicates method parameters failed validation.
	CodeInvalidParams ErrorCode = -32602
	// CodeInternalError indicates an unanticipated server-side failure.
	CodeInternalError ErrorCode = -32603

	// CodeSessionNotInitialized indicates a capability call on a session that
	// has not completed the initialize handshake.
	CodeSessionNotInitialized ErrorCode = -32000
	// CodeUnauthorized indicates a missing, expired, or insufficient credential.
	CodeUnauthorized ErrorCode = -32001
	// CodeResourceExecutionError indicates a resource's own logic failed.
	CodeResourceExecutionError ErrorCode = -32002
	// CodeToolExecutionError indicates a tool's own logic failed.
	CodeToolExecutionError ErrorCode = -32004
)

// Error is a protocol error that can travel as a Go error value and be
// rendered into a response envelope. Data carries structured side-channel
// detail (for example {"originalError": ...}) and is never merged into the
// primary message.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
}

// NewError creates a protocol error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a protocol error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithData returns a copy of the error carrying structured detail.
func (e *Error) WithData(data any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Data: data}
}

// AsError extracts a *Error from err, or nil if err is not a protocol error.
func AsError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return nil
}
