package tools

import (
	"errors"
	"fmt"
)

// Schema is the parameter contract a capability exposes, in the structured
// form the chat-completion endpoint expects: a JSON-Schema object with typed
// properties, optional enumerations and numeric bounds, and a required
// subset.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes one accepted argument field.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// ObjectSchema builds the standard object-typed schema.
func ObjectSchema(properties map[string]Property, required ...string) Schema {
	return Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// Float64Ptr is a convenience for numeric bounds in schema literals.
func Float64Ptr(v float64) *float64 {
	return &v
}

// ErrInvalidArguments indicates the argument object violates the schema.
var ErrInvalidArguments = errors.New("invalid arguments")

// Validate checks args against the schema: required fields present, basic
// type agreement, enum membership, and numeric bounds. Unknown fields are
// tolerated (models routinely add extras); missing optional fields get
// their declared default.
func (s Schema) Validate(args map[string]any) error {
	for _, name := range s.Required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("%w: missing required field %q", ErrInvalidArguments, name)
		}
	}

	for name, prop := range s.Properties {
		value, ok := args[name]
		if !ok {
			if prop.Default != nil {
				args[name] = prop.Default
			}
			continue
		}
		if err := prop.check(name, value); err != nil {
			return err
		}
	}
	return nil
}

func (p Property) check(name string, value any) error {
	switch p.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: field %q: want string, got %T", ErrInvalidArguments, name, value)
		}
		if len(p.Enum) > 0 && !contains(p.Enum, s) {
			return fmt.Errorf("%w: field %q: %q not in %v", ErrInvalidArguments, name, s, p.Enum)
		}
	case "number", "integer":
		// encoding/json decodes every JSON number as float64.
		n, ok := toFloat(value)
		if !ok {
			return fmt.Errorf("%w: field %q: want %s, got %T", ErrInvalidArguments, name, p.Type, value)
		}
		if p.Minimum != nil && n < *p.Minimum {
			return fmt.Errorf("%w: field %q: %v below minimum %v", ErrInvalidArguments, name, n, *p.Minimum)
		}
		if p.Maximum != nil && n > *p.Maximum {
			return fmt.Errorf("%w: field %q: %v above maximum %v", ErrInvalidArguments, name, n, *p.Maximum)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%w: field %q: want boolean, got %T", ErrInvalidArguments, name, value)
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
