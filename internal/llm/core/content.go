package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ContentType identifies content block variants on the wire.
type ContentType string

const (
	ContentTypeText          ContentType = "text"
	ContentTypeThinking      ContentType = "thinking"
	ContentTypeToolUse       ContentType = "tool_use"
	ContentTypeServerToolUse ContentType = "server_tool_use"
	ContentTypeToolResult    ContentType = "tool_result"
)

// ContentBlock is the closed set of content variants. Switches over it should
// handle every concrete type below, with UnknownBlock as the pass-through case.
type ContentBlock interface {
	BlockType() ContentType
	isContentBlock()
}

// TextBlock carries plain model or user text.
type TextBlock struct {
	Text string
}

// ThinkingBlock carries model reasoning and its verification signature.
type ThinkingBlock struct {
	Thinking  string
	Signature string
}

// ToolUseBlock is a client-side tool request that must be answered locally.
// InputError is set when streamed input could not be parsed; Input is then "{}".
type ToolUseBlock struct {
	ID         string
	Name       string
	Input      json.RawMessage
	InputError error
}

// ServerToolUseBlock is a tool request resolved by the remote service.
type ServerToolUseBlock struct {
	ID         string
	Name       string
	Input      json.RawMessage
	InputError error
}

// ToolResultBlock answers a ToolUseBlock with the same id.
type ToolResultBlock struct {
	ToolUseID string
	Content   []ContentBlock
	IsError   bool
}

// UnknownBlock preserves a block whose type this package does not model.
type UnknownBlock struct {
	Type ContentType
	Raw  json.RawMessage
}

func (TextBlock) BlockType() ContentType          { return ContentTypeText }
func (ThinkingBlock) BlockType() ContentType      { return ContentTypeThinking }
func (ToolUseBlock) BlockType() ContentType       { return ContentTypeToolUse }
func (ServerToolUseBlock) BlockType() ContentType { return ContentTypeServerToolUse }
func (ToolResultBlock) BlockType() ContentType    { return ContentTypeToolResult }
func (b UnknownBlock) BlockType() ContentType     { return b.Type }

func (TextBlock) isContentBlock()          {}
func (ThinkingBlock) isContentBlock()      {}
func (ToolUseBlock) isContentBlock()       {}
func (ServerToolUseBlock) isContentBlock() {}
func (ToolResultBlock) isContentBlock()    {}
func (UnknownBlock) isContentBlock()       {}

// JoinText concatenates every text block, including text nested in tool results.
func JoinText(blocks []ContentBlock) string {
	var b strings.Builder
	for _, block := range blocks {
		switch v := block.(type) {
		case TextBlock:
			b.WriteString(v.Text)
		case ToolResultBlock:
			b.WriteString(JoinText(v.Content))
		}
	}
	return b.String()
}

type wireBlock struct {
	Type      ContentType       `json:"type"`
	Text      *string           `json:"text,omitempty"`
	Thinking  *string           `json:"thinking,omitempty"`
	Signature string            `json:"signature,omitempty"`
	ID        string            `json:"id,omitempty"`
	Name      string            `json:"name,omitempty"`
	Input     json.RawMessage   `json:"input,omitempty"`
	ToolUseID string            `json:"tool_use_id,omitempty"`
	Content   []json.RawMessage `json:"content,omitempty"`
	IsError   bool              `json:"is_error,omitempty"`
}

// MarshalBlock encodes one block in its tagged wire shape.
func MarshalBlock(block ContentBlock) (json.RawMessage, error) {
	switch v := block.(type) {
	case TextBlock:
		text := v.Text
		return json.Marshal(wireBlock{Type: ContentTypeText, Text: &text})
	case ThinkingBlock:
		thinking := v.Thinking
		return json.Marshal(wireBlock{Type: ContentTypeThinking, Thinking: &thinking, Signature: v.Signature})
	case ToolUseBlock:
		return json.Marshal(wireBlock{Type: ContentTypeToolUse, ID: v.ID, Name: v.Name, Input: objectOrEmpty(v.Input)})
	case ServerToolUseBlock:
		return json.Marshal(wireBlock{Type: ContentTypeServerToolUse, ID: v.ID, Name: v.Name, Input: objectOrEmpty(v.Input)})
	case ToolResultBlock:
		content, err := marshalBlocks(v.Content)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wireBlock{Type: ContentTypeToolResult, ToolUseID: v.ToolUseID, Content: content, IsError: v.IsError})
	case UnknownBlock:
		if len(bytes.TrimSpace(v.Raw)) == 0 {
			return json.Marshal(wireBlock{Type: v.Type})
		}
		return append(json.RawMessage(nil), v.Raw...), nil
	case nil:
		return nil, fmt.Errorf("%w: nil content block", ErrInvalidRequest)
	default:
		return nil, fmt.Errorf("%w: unsupported content block %T", ErrInvalidRequest, block)
	}
}

// UnmarshalBlock decodes one tagged wire block.
func UnmarshalBlock(data []byte) (ContentBlock, error) {
	tag := gjson.GetBytes(data, "type")
	if !tag.Exists() || tag.String() == "" {
		return nil, fmt.Errorf("%w: content block missing type", ErrInvalidRequest)
	}

	contentType := ContentType(tag.String())
	switch contentType {
	case ContentTypeText, ContentTypeThinking, ContentTypeToolUse, ContentTypeServerToolUse:
	case ContentTypeToolResult:
		return unmarshalToolResult(data)
	default:
		return UnknownBlock{Type: contentType, Raw: append(json.RawMessage(nil), data...)}, nil
	}

	var wire wireBlock
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode %s block: %w", contentType, err)
	}
	switch contentType {
	case ContentTypeText:
		return TextBlock{Text: deref(wire.Text)}, nil
	case ContentTypeThinking:
		return ThinkingBlock{Thinking: deref(wire.Thinking), Signature: wire.Signature}, nil
	case ContentTypeToolUse:
		return ToolUseBlock{ID: wire.ID, Name: wire.Name, Input: objectOrEmpty(wire.Input)}, nil
	default:
		return ServerToolUseBlock{ID: wire.ID, Name: wire.Name, Input: objectOrEmpty(wire.Input)}, nil
	}
}

// unmarshalToolResult accepts both the string and the block-array content forms.
func unmarshalToolResult(data []byte) (ContentBlock, error) {
	result := ToolResultBlock{
		ToolUseID: gjson.GetBytes(data, "tool_use_id").String(),
		IsError:   gjson.GetBytes(data, "is_error").Bool(),
	}

	content := gjson.GetBytes(data, "content")
	switch {
	case !content.Exists():
	case content.Type == gjson.String:
		result.Content = []ContentBlock{TextBlock{Text: content.String()}}
	case content.IsArray():
		var raw []json.RawMessage
		if err := json.Unmarshal([]byte(content.Raw), &raw); err != nil {
			return nil, fmt.Errorf("decode tool_result content: %w", err)
		}
		blocks, err := unmarshalBlocks(raw)
		if err != nil {
			return nil, err
		}
		result.Content = blocks
	default:
		return nil, fmt.Errorf("%w: tool_result content must be a string or array", ErrInvalidRequest)
	}
	return result, nil
}

func marshalBlocks(blocks []ContentBlock) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(blocks))
	for _, block := range blocks {
		raw, err := MarshalBlock(block)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func unmarshalBlocks(raw []json.RawMessage) ([]ContentBlock, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]ContentBlock, 0, len(raw))
	for _, item := range raw {
		block, err := UnmarshalBlock(item)
		if err != nil {
			return nil, err
		}
		out = append(out, block)
	}
	return out, nil
}

func objectOrEmpty(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
