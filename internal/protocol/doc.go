// Package protocol defines the dialgate wire envelope.
//
// A request is {"v": "1.0", "id": <string|number|null>, "method": "...",
// "params": {...}}; a response carries the same version tag and id with
// exactly one of result or error. Error codes follow the JSON-RPC numbering
// with dialgate-specific codes in the implementation-defined range.
//
// The package is transport-agnostic: both the HTTP adapter and the stream
// adapter decode into these types and hand them to the dispatcher.
package protocol
