package core

import (
	"encoding/json"
	"fmt"
)

// Role identifies the message author in the canonical request format.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StopReason represents the canonical reason a model response stopped.
type StopReason string

const (
	StopReasonStop    StopReason = "stop"
	StopReasonLength  StopReason = "length"
	StopReasonToolUse StopReason = "tool_use"
	StopReasonPause   StopReason = "pause"
	StopReasonRefusal StopReason = "refusal"
)

// Message is the provider-agnostic conversation record. Messages are treated
// as immutable once received; conversation state grows only by appending.
type Message struct {
	ID         string
	Role       Role
	Content    []ContentBlock
	StopReason StopReason
	Usage      Usage
}

type wireMessage struct {
	ID         string            `json:"id,omitempty"`
	Role       Role              `json:"role"`
	Content    []json.RawMessage `json:"content"`
	StopReason StopReason        `json:"stop_reason,omitempty"`
}

// MarshalJSON encodes the message with its content in wire form.
func (m Message) MarshalJSON() ([]byte, error) {
	content, err := marshalBlocks(m.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{
		ID:         m.ID,
		Role:       m.Role,
		Content:    content,
		StopReason: m.StopReason,
	})
}

// UnmarshalJSON decodes a wire message; unrecognised block types are kept as UnknownBlock.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	content, err := unmarshalBlocks(wire.Content)
	if err != nil {
		return fmt.Errorf("decode %s message content: %w", wire.Role, err)
	}
	*m = Message{
		ID:         wire.ID,
		Role:       wire.Role,
		Content:    content,
		StopReason: wire.StopReason,
	}
	return nil
}

// NewTextMessage builds a single-text-block message.
func NewTextMessage(role Role, text string) Message {
	return Message{
		Role:    role,
		Content: []ContentBlock{TextBlock{Text: text}},
	}
}

// Text concatenates the text blocks of the message.
func (m Message) Text() string {
	return JoinText(m.Content)
}

// Usage tracks provider token accounting and computed cost.
type Usage struct {
	InputTokens      int     `json:"input_tokens"`
	OutputTokens     int     `json:"output_tokens"`
	CacheReadTokens  int     `json:"cache_read_tokens"`
	CacheWriteTokens int     `json:"cache_write_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// TokenCount returns the total tokens consumed across all usage buckets.
func (u Usage) TokenCount() int {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheWriteTokens
}

// Add returns the element-wise sum of two usage snapshots.
func (u Usage) Add(other Usage) Usage {
	sum := Usage{
		InputTokens:      u.InputTokens + other.InputTokens,
		OutputTokens:     u.OutputTokens + other.OutputTokens,
		CacheReadTokens:  u.CacheReadTokens + other.CacheReadTokens,
		CacheWriteTokens: u.CacheWriteTokens + other.CacheWriteTokens,
		CostUSD:          u.CostUSD + other.CostUSD,
	}
	sum.TotalTokens = sum.TokenCount()
	return sum
}

// Clone returns a copy safe to share as pointer payload.
func (u Usage) Clone() *Usage {
	copied := u
	return &copied
}
