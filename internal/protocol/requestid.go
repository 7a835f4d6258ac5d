// ABOUTME: Correlation id type that accepts either a JSON string or number.
// ABOUTME: A nil or null id marks the envelope as a fire-and-forget notification.

package protocol

import (
	"encoding/json"
	"fmt"
)

// RequestID is the correlation id echoed from request to response. The wire
// format allows strings and numbers; anything else is rejected at decode time.
type RequestID struct {
	value any
}

// NewRequestID wraps a string or numeric value as a correlation id.
// Unsupported types produce a null id.
func NewRequestID(value any) *RequestID {
	switch value.(type) {
	case string, int, int32, int64, float64:
		return &RequestID{value: value}
	default:
		return &RequestID{value: nil}
	}
}

// IsNil reports whether the id is absent or null.
func (id *RequestID) IsNil() bool {
	return id == nil || id.value == nil
}

// Value returns the underlying string or numeric value, or nil.
func (id *RequestID) Value() any {
	if id == nil {
		return nil
	}
	return id.value
}

// String renders the id for logging. Null ids render as the empty string.
func (id *RequestID) String() string {
	if id.IsNil() {
		return ""
	}
	return fmt.Sprintf("%v", id.value)
}

// MarshalJSON implements json.Marshaler.
func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id.IsNil() {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler. Numbers without a fractional
// part decode as int64 so they re-encode without a trailing ".0".
func (id *RequestID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		id.value = nil
		return nil
	}

	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		if num == float64(int64(num)) {
			id.value = int64(num)
		} else {
			id.value = num
		}
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		id.value = str
		return nil
	}

	return fmt.Errorf("request id must be a string or number, got %s", string(data))
}
