package llmtools

import (
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// schemaNode is the subset of JSON Schema used by tool argument and result
// contracts: type, properties, required, additionalProperties (boolean),
// items, enum and string length bounds. Other keywords are ignored.
type schemaNode struct {
	Type                 string                 `json:"type"`
	Properties           map[string]*schemaNode `json:"properties"`
	Required             []string               `json:"required"`
	AdditionalProperties *bool                  `json:"additionalProperties"`
	Items                *schemaNode            `json:"items"`
	Enum                 []any                  `json:"enum"`
	MinLength            *int                   `json:"minLength"`
	MaxLength            *int                   `json:"maxLength"`
}

// validateAgainstSchema returns nil when value conforms to schema, otherwise
// an error naming the path of the first mismatch. An empty schema accepts
// everything.
func validateAgainstSchema(value any, schema json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	var n schemaNode
	if err := json.Unmarshal(schema, &n); err != nil {
		return fmt.Errorf("schema: unreadable: %w", err)
	}
	return n.check(value, "$")
}

func (n *schemaNode) check(v any, path string) error {
	if n == nil {
		return nil
	}
	typ := n.Type
	if typ == "" && (n.Properties != nil || len(n.Required) > 0) {
		typ = "object"
	}
	switch typ {
	case "object":
		obj, ok := v.(map[string]any)
		if !ok {
			return mismatch(path, "object")
		}
		for _, name := range n.Required {
			if _, ok := obj[name]; !ok {
				return fmt.Errorf("schema: %s: missing required field %q", path, name)
			}
		}
		for k, val := range obj {
			if sub, ok := n.Properties[k]; ok {
				if err := sub.check(val, path+"."+k); err != nil {
					return err
				}
				continue
			}
			if n.AdditionalProperties != nil && !*n.AdditionalProperties {
				return fmt.Errorf("schema: %s: additional property %q not allowed", path, k)
			}
		}
	case "array":
		arr, ok := v.([]any)
		if !ok {
			return mismatch(path, "array")
		}
		for i, elem := range arr {
			if err := n.Items.check(elem, path+"["+strconv.Itoa(i)+"]"); err != nil {
				return err
			}
		}
	case "string":
		s, ok := v.(string)
		if !ok {
			return mismatch(path, "string")
		}
		l := utf8.RuneCountInString(s)
		if n.MinLength != nil && l < *n.MinLength {
			return fmt.Errorf("schema: %s: shorter than %d", path, *n.MinLength)
		}
		if n.MaxLength != nil && l > *n.MaxLength {
			return fmt.Errorf("schema: %s: longer than %d", path, *n.MaxLength)
		}
	case "integer":
		f, ok := v.(float64)
		if !ok || f != float64(int64(f)) {
			return mismatch(path, "integer")
		}
	case "number":
		if _, ok := v.(float64); !ok {
			return mismatch(path, "number")
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return mismatch(path, "boolean")
		}
	case "null":
		if v != nil {
			return mismatch(path, "null")
		}
	}
	if len(n.Enum) > 0 && !inEnum(v, n.Enum) {
		return fmt.Errorf("schema: %s: value not in enum", path)
	}
	return nil
}

func mismatch(path, want string) error {
	return fmt.Errorf("schema: %s: expected %s", path, want)
}

// inEnum compares by JSON encoding so numbers and strings match the way they
// were decoded.
func inEnum(v any, enum []any) bool {
	got, err := json.Marshal(v)
	if err != nil {
		return false
	}
	for _, e := range enum {
		if b, err := json.Marshal(e); err == nil && string(b) == string(got) {
			return true
		}
	}
	return false
}
