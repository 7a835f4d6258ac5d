// ABOUTME: Request and response envelope types for the dialgate wire protocol.
// ABOUTME: Every message carries a version tag, correlation id, and method or result.

package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the protocol version tag accepted and emitted by this server.
const Version = "1.0"

// Method is one of the fixed, case-sensitive protocol method names.
type Method string

const (
	MethodInitialize   Method = "initialize"
	MethodPing         Method = "ping"
	MethodToolsExecute Method = "tools/execute"
	MethodResourcesGet Method = "resources/get"
	MethodShutdown     Method = "shutdown"
)

// Request is an inbound envelope. Params stay opaque until the handler for
// the method interprets them.
type Request struct {
	V      string          `json:"v"`
	ID     *RequestID      `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request is fire-and-forget.
func (r *Request) IsNotification() bool {
	return r.ID.IsNil()
}

// Response is an outbound envelope. Exactly one of Result or Error is set.
type Response struct {
	V      string          `json:"v"`
	ID     *RequestID      `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// NewResultResponse builds a success envelope, marshaling the result value.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return &Response{
		V:      Version,
		ID:     id,
		Result: resultBytes,
	}, nil
}

// NewErrorResponse builds an error envelope keyed to the incoming id.
func NewErrorResponse(id *RequestID, perr *Error) *Response {
	return &Response{
		V:     Version,
		ID:    id,
		Error: perr,
	}
}
