package core

import (
	"context"
	"encoding/json"
	"time"
)

// MessageService is the remote model collaborator. Create returns a whole
// response; Stream returns the same response as ordered protocol events and
// closes the channel after message_stop or a terminal EventError.
type MessageService interface {
	Create(ctx context.Context, req *Request) (*Message, error)
	Stream(ctx context.Context, req *Request) (<-chan StreamEvent, error)
}

// ToolChoiceType defines how the provider may choose tools.
type ToolChoiceType string

const (
	ToolChoiceAuto ToolChoiceType = "auto"
	ToolChoiceAny  ToolChoiceType = "any"
	ToolChoiceNone ToolChoiceType = "none"
	ToolChoiceTool ToolChoiceType = "tool"
)

// ToolChoice controls provider tool dispatch mode.
type ToolChoice struct {
	Type ToolChoiceType `json:"type"`
	Name string         `json:"name,omitempty"`
}

// ToolSpec describes a client-side tool exposed to the model.
// Schema can be generated from a Go struct via NewToolSpecFromStruct.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"input_schema"`
}

// ServerToolType names a tool implemented by the remote service.
type ServerToolType string

const (
	ServerToolWebSearch ServerToolType = "web_search_20250305"
)

// ServerToolSpec declares a server-side tool. MaxUses of zero leaves the
// service default in place.
type ServerToolSpec struct {
	Type    ServerToolType `json:"type"`
	MaxUses int            `json:"max_uses,omitempty"`
}

// RetryPolicy configures retry/backoff behavior for retryable failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Request is the provider-agnostic model request.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolSpec
	ServerTools []ServerToolSpec
	MaxTokens   int
	Temperature *float64
	ToolChoice  ToolChoice
	Metadata    map[string]string
	Retry       RetryPolicy
}
