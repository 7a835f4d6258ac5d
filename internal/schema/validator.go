// ABOUTME: Structural validator for JSON-decoded values against a schema subset.
// ABOUTME: Collects all violations as path+message pairs and never panics.

package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// FieldError locates a single violation within the validated value. Path is a
// dotted path from the root ("" for the root itself, "items.3.name" for
// nested members).
type FieldError struct {
	Path    string
	Message string
}

func (e FieldError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Result is the outcome of a validation pass. Errors holds every violation
// found, not just the first.
type Result struct {
	Valid  bool
	Errors []FieldError
}

// Summary joins all violations into one semicolon-separated string.
func (r Result) Summary() string {
	parts := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}

// Validate checks a JSON-decoded value against a schema expressed as a
// map[string]any (the shape encoding/json produces for a JSON object).
//
// Supported keywords: type (object, array, string, number, integer, boolean),
// enum, minimum, maximum, minLength, maxLength, pattern, required, properties,
// additionalProperties (false only), minProperties, items.
//
// Unknown keywords are ignored. Malformed schema entries (a non-numeric
// minimum, an invalid pattern) are reported as violations rather than
// panicking, so a bad schema can never take the server down.
func Validate(value any, schema map[string]any) Result {
	v := &validator{}
	v.check(value, schema, "")
	return Result{Valid: len(v.errors) == 0, Errors: v.errors}
}

type validator struct {
	errors []FieldError
}

func (v *validator) fail(path, format string, args ...any) {
	v.errors = append(v.errors, FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) check(value any, schema map[string]any, path string) {
	if schema == nil {
		return
	}

	if rawType, present := schema["type"]; present {
		typ, ok := rawType.(string)
		if !ok {
			v.fail(path, "schema type is not a string")
			return
		}
		if !v.checkType(value, typ, path) {
			// Type mismatch makes the remaining keyword checks meaningless.
			return
		}
	}

	if enum, ok := schema["enum"].([]any); ok {
		v.checkEnum(value, enum, path)
	}

	switch val := value.(type) {
	case string:
		v.checkString(val, schema, path)
	case float64:
		v.checkNumber(val, schema, path)
	case map[string]any:
		v.checkObject(val, schema, path)
	case []any:
		v.checkArray(val, schema, path)
	}
}

func (v *validator) checkType(value any, typ, path string) bool {
	ok := false
	switch typ {
	case "object":
		_, ok = value.(map[string]any)
	case "array":
		_, ok = value.([]any)
	case "string":
		_, ok = value.(string)
	case "boolean":
		_, ok = value.(bool)
	case "number":
		_, ok = value.(float64)
	case "integer":
		if f, isNum := value.(float64); isNum {
			ok = f == float64(int64(f))
		}
	default:
		v.fail(path, "schema declares unknown type %q", typ)
		return false
	}
	if !ok {
		v.fail(path, "expected %s, got %s", typ, jsonTypeName(value))
	}
	return ok
}

func (v *validator) checkEnum(value any, enum []any, path string) {
	for _, allowed := range enum {
		if value == allowed {
			return
		}
	}
	v.fail(path, "value %v is not one of the allowed values", value)
}

func (v *validator) checkString(val string, schema map[string]any, path string) {
	if min, ok, bad := numericKeyword(schema, "minLength"); bad {
		v.fail(path, "schema minLength is not a number")
	} else if ok && len(val) < int(min) {
		v.fail(path, "string length %d is below minimum %d", len(val), int(min))
	}
	if max, ok, bad := numericKeyword(schema, "maxLength"); bad {
		v.fail(path, "schema maxLength is not a number")
	} else if ok && len(val) > int(max) {
		v.fail(path, "string length %d exceeds maximum %d", len(val), int(max))
	}
	if pat, ok := schema["pattern"].(string); ok {
		re, err := regexp.Compile(pat)
		if err != nil {
			v.fail(path, "schema pattern %q does not compile", pat)
		} else if !re.MatchString(val) {
			v.fail(path, "string does not match pattern %q", pat)
		}
	}
}

func (v *validator) checkNumber(val float64, schema map[string]any, path string) {
	if min, ok, bad := numericKeyword(schema, "minimum"); bad {
		v.fail(path, "schema minimum is not a number")
	} else if ok && val < min {
		v.fail(path, "value %v is below minimum %v", val, min)
	}
	if max, ok, bad := numericKeyword(schema, "maximum"); bad {
		v.fail(path, "schema maximum is not a number")
	} else if ok && val > max {
		v.fail(path, "value %v exceeds maximum %v", val, max)
	}
}

func (v *validator) checkObject(val map[string]any, schema map[string]any, path string) {
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			name, isStr := r.(string)
			if !isStr {
				v.fail(path, "schema required entry is not a string")
				continue
			}
			if _, present := val[name]; !present {
				v.fail(joinPath(path, name), "required property is missing")
			}
		}
	}

	if min, ok, bad := numericKeyword(schema, "minProperties"); bad {
		v.fail(path, "schema minProperties is not a number")
	} else if ok && len(val) < int(min) {
		v.fail(path, "object has %d properties, minimum is %d", len(val), int(min))
	}

	props, _ := schema["properties"].(map[string]any)

	if extra, ok := schema["additionalProperties"].(bool); ok && !extra {
		unknown := make([]string, 0)
		for name := range val {
			if _, declared := props[name]; !declared {
				unknown = append(unknown, name)
			}
		}
		sort.Strings(unknown)
		for _, name := range unknown {
			v.fail(joinPath(path, name), "property is not allowed")
		}
	}

	for name, sub := range props {
		subSchema, isMap := sub.(map[string]any)
		if !isMap {
			v.fail(joinPath(path, name), "schema for property is not an object")
			continue
		}
		if member, present := val[name]; present {
			v.check(member, subSchema, joinPath(path, name))
		}
	}
}

func (v *validator) checkArray(val []any, schema map[string]any, path string) {
	items, ok := schema["items"].(map[string]any)
	if !ok {
		return
	}
	for i, member := range val {
		v.check(member, items, joinPath(path, fmt.Sprintf("%d", i)))
	}
}

func numericKeyword(schema map[string]any, key string) (value float64, present bool, malformed bool) {
	raw, ok := schema[key]
	if !ok {
		return 0, false, false
	}
	switch n := raw.(type) {
	case float64:
		return n, true, false
	case int:
		return float64(n), true, false
	default:
		return 0, false, true
	}
}

func joinPath(base, member string) string {
	if base == "" {
		return member
	}
	return base + "." + member
}

func jsonTypeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}
