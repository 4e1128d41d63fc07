package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
)

// ToolSchema is the object schema sent as a tool's input_schema. Keywords
// other than type, properties and required are dropped.
type ToolSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required,omitempty"`
}

// Raw encodes s in the form stored on ToolSpec.Schema.
func (s ToolSchema) Raw() (json.RawMessage, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode tool schema: %w", err)
	}
	return raw, nil
}

func invalidSchema(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrInvalidRequest, ErrInvalidToolSchema, fmt.Sprintf(format, args...))
}

// ParseToolSchema validates raw as an object schema. Empty input is the
// schema of a tool that takes no arguments. Every required name must be a
// declared property.
func ParseToolSchema(raw json.RawMessage) (ToolSchema, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ToolSchema{Type: "object", Properties: map[string]any{}}, nil
	}
	if !gjson.ValidBytes(trimmed) {
		return ToolSchema{}, invalidSchema("malformed json")
	}
	if !gjson.ParseBytes(trimmed).IsObject() {
		return ToolSchema{}, invalidSchema("schema must be a json object")
	}

	var schema ToolSchema
	if err := json.Unmarshal(trimmed, &schema); err != nil {
		return ToolSchema{}, invalidSchema("%v", err)
	}
	switch strings.TrimSpace(schema.Type) {
	case "", "object":
		schema.Type = "object"
	default:
		return ToolSchema{}, invalidSchema("type %q, want object", schema.Type)
	}
	if schema.Properties == nil {
		schema.Properties = map[string]any{}
	}
	for _, name := range schema.Required {
		if _, ok := schema.Properties[name]; !ok {
			return ToolSchema{}, invalidSchema("required property %q is not declared", name)
		}
	}
	slices.Sort(schema.Required)
	schema.Required = slices.Compact(schema.Required)
	return schema, nil
}

var structReflector = jsonschema.Reflector{
	DoNotReference:            true,
	AllowAdditionalProperties: false,
}

// ReflectToolSchema derives an input schema from the struct type of v.
// Fields without omitempty are required.
func ReflectToolSchema(v any) (ToolSchema, error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return ToolSchema{}, fmt.Errorf("%w: tool input must be a struct, got %T", ErrInvalidRequest, v)
	}

	raw, err := json.Marshal(structReflector.ReflectFromType(t))
	if err != nil {
		return ToolSchema{}, fmt.Errorf("encode reflected schema for %s: %w", t, err)
	}
	return ParseToolSchema(raw)
}

// NewToolSpecFromStruct builds a ToolSpec whose schema is reflected from the
// struct type of input.
func NewToolSpecFromStruct(name, description string, input any) (ToolSpec, error) {
	schema, err := ReflectToolSchema(input)
	if err != nil {
		return ToolSpec{}, err
	}
	raw, err := schema.Raw()
	if err != nil {
		return ToolSpec{}, err
	}
	return ToolSpec{Name: name, Description: description, Schema: raw}, nil
}
