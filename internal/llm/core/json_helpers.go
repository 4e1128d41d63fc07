package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrToolInputNotObject indicates tool input that parsed but is not a JSON object.
var ErrToolInputNotObject = errors.New("tool input must be a json object")

const emptyObject = "{}"

// RawJSONFromString copies raw when it is valid JSON and returns nil otherwise.
func RawJSONFromString(raw string) json.RawMessage {
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return nil
	}
	return json.RawMessage(raw)
}

// MarshalToolInput encodes a decoded tool input. Nil and JSON null become {}.
func MarshalToolInput(input any) (json.RawMessage, error) {
	if input == nil {
		return json.RawMessage(emptyObject), nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0, gjson.ParseBytes(raw).Type == gjson.Null:
		return json.RawMessage(emptyObject), nil
	case !gjson.ValidBytes(raw):
		return nil, errors.New("tool input is not valid json")
	}
	return raw, nil
}

// ParseToolInput checks the partial_json fragments of one tool_use block once
// they are joined. Nothing at all is the empty object.
func ParseToolInput(raw string) (json.RawMessage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return json.RawMessage(emptyObject), nil
	}
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("invalid json %q", clip(raw, 64))
	}
	if !gjson.Parse(raw).IsObject() {
		return nil, ErrToolInputNotObject
	}
	return json.RawMessage(raw), nil
}

// DecodeJSONObject decodes a tool input object. Blank input is an empty map.
func DecodeJSONObject(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	obj := map[string]any{}
	if len(raw) == 0 {
		return obj, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: invalid tool input json", ErrInvalidRequest)
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode tool input: %w", err)
	}
	return obj, nil
}

// DecodeJSONObjectOrEmpty is DecodeJSONObject with errors mapped to an empty map.
func DecodeJSONObjectOrEmpty(raw json.RawMessage) map[string]any {
	if obj, err := DecodeJSONObject(raw); err == nil {
		return obj
	}
	return map[string]any{}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
