package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestUnmarshalBlockKeepsUnknownTypesVerbatim(t *testing.T) {
	t.Parallel()

	raw := `{"type":"web_search_tool_result","tool_use_id":"s1","content":[{"type":"web_search_result","url":"https://go.dev"}]}`
	block, err := UnmarshalBlock([]byte(raw))
	if err != nil {
		t.Fatalf("UnmarshalBlock() error = %v", err)
	}
	unknown, ok := block.(UnknownBlock)
	if !ok {
		t.Fatalf("UnmarshalBlock() = %T, want UnknownBlock", block)
	}
	if unknown.BlockType() != "web_search_tool_result" {
		t.Fatalf("BlockType() = %q", unknown.BlockType())
	}

	encoded, err := MarshalBlock(unknown)
	if err != nil {
		t.Fatalf("MarshalBlock() error = %v", err)
	}
	if string(encoded) != raw {
		t.Fatalf("MarshalBlock() = %s, want %s", encoded, raw)
	}
}

func TestUnmarshalToolResultAcceptsStringAndArrayContent(t *testing.T) {
	t.Parallel()

	fromString, err := UnmarshalBlock([]byte(`{"type":"tool_result","tool_use_id":"t1","content":"done","is_error":true}`))
	if err != nil {
		t.Fatalf("UnmarshalBlock(string content) error = %v", err)
	}
	result := fromString.(ToolResultBlock)
	if result.ToolUseID != "t1" || !result.IsError || JoinText(result.Content) != "done" {
		t.Fatalf("string content result = %#v", result)
	}

	fromArray, err := UnmarshalBlock([]byte(`{"type":"tool_result","tool_use_id":"t2","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}`))
	if err != nil {
		t.Fatalf("UnmarshalBlock(array content) error = %v", err)
	}
	result = fromArray.(ToolResultBlock)
	if result.IsError || len(result.Content) != 2 || JoinText(result.Content) != "ab" {
		t.Fatalf("array content result = %#v", result)
	}
}

func TestMarshalToolResultEncodesContentArray(t *testing.T) {
	t.Parallel()

	raw, err := MarshalBlock(ToolResultBlock{ToolUseID: "t1", Content: []ContentBlock{TextBlock{Text: "ok"}}})
	if err != nil {
		t.Fatalf("MarshalBlock() error = %v", err)
	}
	want := `{"type":"tool_result","tool_use_id":"t1","content":[{"type":"text","text":"ok"}]}`
	if string(raw) != want {
		t.Fatalf("MarshalBlock() = %s, want %s", raw, want)
	}
}

func TestMarshalToolUseDefaultsEmptyInput(t *testing.T) {
	t.Parallel()

	raw, err := MarshalBlock(ToolUseBlock{ID: "t1", Name: "now"})
	if err != nil {
		t.Fatalf("MarshalBlock() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if input, ok := decoded["input"].(map[string]any); !ok || len(input) != 0 {
		t.Fatalf("input = %#v, want empty object", decoded["input"])
	}
}

func TestUnmarshalBlockRequiresType(t *testing.T) {
	t.Parallel()

	if _, err := UnmarshalBlock([]byte(`{"text":"x"}`)); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("UnmarshalBlock() error = %v, want ErrInvalidRequest", err)
	}
}

func TestMarshalBlockRejectsNil(t *testing.T) {
	t.Parallel()

	if _, err := MarshalBlock(nil); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("MarshalBlock(nil) error = %v, want ErrInvalidRequest", err)
	}
}

func TestJoinTextSkipsNonTextBlocks(t *testing.T) {
	t.Parallel()

	got := JoinText([]ContentBlock{
		TextBlock{Text: "a"},
		ThinkingBlock{Thinking: "hidden"},
		ToolResultBlock{Content: []ContentBlock{TextBlock{Text: "b"}}},
	})
	if got != "ab" {
		t.Fatalf("JoinText() = %q, want %q", got, "ab")
	}
}
