// ABOUTME: Derives capability parameter schemas from Go structs via reflection.
// ABOUTME: Keeps the wire schema and the decoded input struct from drifting apart.

package builtins

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// mustSchema reflects a struct into the map form the schema validator
// consumes. Panics on failure: schemas are built once at startup from static
// types, so a failure is a programming error.
func mustSchema(v any) map[string]any {
	r := &jsonschema.Reflector{
		DoNotReference: true,
	}
	s := r.Reflect(v)

	raw, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("builtins: marshaling schema: %v", err))
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		panic(fmt.Sprintf("builtins: decoding schema: %v", err))
	}

	// Document-level keys are noise for input validation.
	delete(m, "$schema")
	delete(m, "$id")
	return m
}

// decodeInput re-marshals the validated input map into the typed struct the
// handler works with.
func decodeInput(input map[string]any, out any) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encoding input: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding input: %w", err)
	}
	return nil
}
