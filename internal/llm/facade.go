package llm

import (
	anthropicprovider "toolrunner/internal/llm/providers/anthropic"
	mockprovider "toolrunner/internal/llm/providers/mock"
	"toolrunner/internal/llm/stream"

	"toolrunner/internal/llm/core"
)

type (
	// MessageService is the remote model contract used by orchestrators.
	MessageService = core.MessageService

	// ToolChoice* aliases expose tool-selection primitives.
	ToolChoiceType = core.ToolChoiceType
	ToolChoice     = core.ToolChoice
	ToolSpec       = core.ToolSpec
	ServerToolType = core.ServerToolType
	ServerToolSpec = core.ServerToolSpec
	RetryPolicy    = core.RetryPolicy

	// Request and stream aliases define the public protocol.
	Request     = core.Request
	EventType   = core.EventType
	DeltaType   = core.DeltaType
	Delta       = core.Delta
	StreamEvent = core.StreamEvent

	// Conversation-model aliases.
	Role        = core.Role
	StopReason  = core.StopReason
	ContentType = core.ContentType
	Message     = core.Message
	Usage       = core.Usage

	// Content block variants.
	ContentBlock       = core.ContentBlock
	TextBlock          = core.TextBlock
	ThinkingBlock      = core.ThinkingBlock
	ToolUseBlock       = core.ToolUseBlock
	ServerToolUseBlock = core.ServerToolUseBlock
	ToolResultBlock    = core.ToolResultBlock
	UnknownBlock       = core.UnknownBlock

	// ModelPricing and PricingTable configure per-model token prices.
	ModelPricing = core.ModelPricing
	PricingTable = core.PricingTable

	// Anthropic* aliases expose provider-specific configuration and implementation.
	AnthropicConfig   = anthropicprovider.Config
	AnthropicProvider = anthropicprovider.Provider

	// MockProvider replays scripted responses for tests.
	MockProvider = mockprovider.Provider

	// Aggregator folds a stream into a message.
	Aggregator = stream.Aggregator
)

const (
	EventMessageStart      = core.EventMessageStart
	EventContentBlockStart = core.EventContentBlockStart
	EventContentBlockDelta = core.EventContentBlockDelta
	EventContentBlockStop  = core.EventContentBlockStop
	EventMessageDelta      = core.EventMessageDelta
	EventMessageStop       = core.EventMessageStop
	EventError             = core.EventError

	DeltaText      = core.DeltaText
	DeltaThinking  = core.DeltaThinking
	DeltaSignature = core.DeltaSignature
	DeltaInputJSON = core.DeltaInputJSON

	ToolChoiceAuto = core.ToolChoiceAuto
	ToolChoiceAny  = core.ToolChoiceAny
	ToolChoiceNone = core.ToolChoiceNone
	ToolChoiceTool = core.ToolChoiceTool

	ServerToolWebSearch = core.ServerToolWebSearch

	RoleUser      = core.RoleUser
	RoleAssistant = core.RoleAssistant

	StopReasonStop    = core.StopReasonStop
	StopReasonLength  = core.StopReasonLength
	StopReasonToolUse = core.StopReasonToolUse
	StopReasonPause   = core.StopReasonPause
	StopReasonRefusal = core.StopReasonRefusal
)

var (
	// ErrInvalidRequest indicates malformed canonical request payloads.
	ErrInvalidRequest = core.ErrInvalidRequest
	// ErrMissingAPIKey indicates missing Anthropic API credentials.
	ErrMissingAPIKey = core.ErrMissingAPIKey
	// ErrProtocolViolation indicates a stream that broke event ordering rules.
	ErrProtocolViolation = stream.ErrProtocolViolation
)

// NewTextMessage builds a single-text-block message.
func NewTextMessage(role Role, text string) Message {
	return core.NewTextMessage(role, text)
}

// NewToolSpecFromStruct reflects a Go struct into a normalized tool schema.
func NewToolSpecFromStruct(name, description string, schemaStruct any) (ToolSpec, error) {
	return core.NewToolSpecFromStruct(name, description, schemaStruct)
}

// CalculateCost prices u with p.
func CalculateCost(u Usage, p ModelPricing) float64 {
	return core.CalculateCost(u, p)
}

// NewAnthropicProvider constructs an Anthropic provider with normalized defaults.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	return anthropicprovider.New(cfg)
}

// NewAggregator returns an aggregator expecting message_start.
func NewAggregator() *Aggregator {
	return stream.NewAggregator()
}
