package schema

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/lanonasis/onasis-gateway/internal/errors"
)

// Schema is the subset of JSON Schema the gateway understands: type,
// properties, required, enum, minimum/maximum, items, plus per-field
// defaults for the abstraction layer.
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Enum        []any              `json:"enum,omitempty"`
	Minimum     *float64           `json:"minimum,omitempty"`
	Maximum     *float64           `json:"maximum,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Default     any                `json:"default,omitempty"`
}

// Object is a convenience constructor for a top-level object schema.
func Object(props map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: "object", Properties: props, Required: required}
}

// Str returns a string field schema with a description.
func Str(desc string) *Schema { return &Schema{Type: "string", Description: desc} }

// Num returns a number field schema with a description.
func Num(desc string) *Schema { return &Schema{Type: "number", Description: desc} }

// Bool returns a boolean field schema with a description.
func Bool(desc string) *Schema { return &Schema{Type: "boolean", Description: desc} }

// WithDefault sets the field default and returns the schema.
func (s *Schema) WithDefault(v any) *Schema {
	s.Default = v
	return s
}

// WithEnum sets the allowed values and returns the schema.
func (s *Schema) WithEnum(values ...any) *Schema {
	s.Enum = values
	return s
}

// ValidateAndFill validates input against the schema and returns a copy
// with defaults filled in for missing fields. The caller's map is never
// mutated. Validation is idempotent: validating the returned copy yields
// an equal result.
func (s *Schema) ValidateAndFill(input map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = v
	}

	for _, name := range s.Required {
		if _, ok := out[name]; !ok {
			return nil, errors.ErrValidation.WithMessagef("missing required field %q", name)
		}
	}

	for name, field := range s.Properties {
		value, ok := out[name]
		if !ok {
			if field.Default != nil {
				out[name] = field.Default
			}
			continue
		}
		if err := field.check(name, value); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// check validates a single value against a field schema.
func (s *Schema) check(name string, value any) error {
	if value == nil {
		return nil
	}

	switch s.Type {
	case "string":
		if _, ok := value.(string); !ok {
			return typeError(name, "string", value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return typeError(name, "boolean", value)
		}
	case "number":
		if _, ok := AsFloat(value); !ok {
			return typeError(name, "number", value)
		}
	case "integer":
		f, ok := AsFloat(value)
		if !ok || f != math.Trunc(f) {
			return typeError(name, "integer", value)
		}
	case "array":
		items, ok := value.([]any)
		if !ok {
			return typeError(name, "array", value)
		}
		if s.Items != nil {
			for i, item := range items {
				elem := fmt.Sprintf("%s[%d]", name, i)
				if err := s.Items.check(elem, item); err != nil {
					return err
				}
				if s.Items.Type == "object" {
					obj, _ := item.(map[string]any)
					for _, req := range s.Items.Required {
						if _, present := obj[req]; !present {
							return errors.ErrValidation.WithMessagef("missing required field %q in %s", req, elem)
						}
					}
				}
			}
		}
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return typeError(name, "object", value)
		}
		for _, req := range s.Required {
			if _, present := obj[req]; !present {
				return errors.ErrValidation.WithMessagef("missing required field %q in %s", req, name)
			}
		}
		for prop, propSchema := range s.Properties {
			if v, present := obj[prop]; present {
				if err := propSchema.check(name+"."+prop, v); err != nil {
					return err
				}
			}
		}
	case "":
		// untyped field: anything goes
	default:
		return errors.ErrValidation.WithMessagef("field %q: unsupported schema type %q", name, s.Type)
	}

	if len(s.Enum) > 0 {
		if !enumContains(s.Enum, value) {
			return errors.ErrValidation.WithMessagef("field %q: value not in enum", name)
		}
	}

	if f, ok := AsFloat(value); ok {
		if s.Minimum != nil && f < *s.Minimum {
			return errors.ErrValidation.WithMessagef("field %q: %v below minimum %v", name, f, *s.Minimum)
		}
		if s.Maximum != nil && f > *s.Maximum {
			return errors.ErrValidation.WithMessagef("field %q: %v above maximum %v", name, f, *s.Maximum)
		}
	}

	return nil
}

// JSONSchema renders the schema as a plain JSON Schema document suitable
// for compilation (defaults are advisory and carried through as-is).
func (s *Schema) JSONSchema() map[string]any {
	doc := map[string]any{}
	if s.Type != "" {
		doc["type"] = s.Type
	}
	if s.Description != "" {
		doc["description"] = s.Description
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for k, v := range s.Properties {
			props[k] = v.JSONSchema()
		}
		doc["properties"] = props
	}
	if len(s.Required) > 0 {
		req := make([]any, len(s.Required))
		for i, r := range s.Required {
			req[i] = r
		}
		doc["required"] = req
	}
	if len(s.Enum) > 0 {
		doc["enum"] = s.Enum
	}
	if s.Minimum != nil {
		doc["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		doc["maximum"] = *s.Maximum
	}
	if s.Items != nil {
		doc["items"] = s.Items.JSONSchema()
	}
	if s.Default != nil {
		doc["default"] = s.Default
	}
	return doc
}

func typeError(name, want string, got any) error {
	return errors.ErrValidation.WithMessagef("field %q: expected %s, got %T", name, want, got)
}

// AsFloat normalizes the numeric representations accepted by validation
// (float64 from JSON, int and json.Number from in-process callers) to a
// float64. Transforms that do arithmetic on validated numbers must use it
// so they accept everything validation accepted.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func enumContains(enum []any, value any) bool {
	for _, e := range enum {
		if e == value {
			return true
		}
		// JSON numbers arrive as float64; enum literals may be ints
		ef, eok := AsFloat(e)
		vf, vok := AsFloat(value)
		if eok && vok && ef == vf {
			return true
		}
	}
	return false
}
