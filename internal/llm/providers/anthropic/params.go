package anthropicprovider

import (
	"encoding/json"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"toolrunner/internal/llm/core"
)

// defaultMaxTokens is used when callers do not provide an explicit token budget.
const defaultMaxTokens = 1024

// mapStopReason maps Anthropic stop reasons to canonical provider-agnostic values.
func mapStopReason(reason string) (core.StopReason, error) {
	switch reason {
	case "":
		return "", nil
	case "end_turn", "stop_sequence":
		return core.StopReasonStop, nil
	case "max_tokens":
		return core.StopReasonLength, nil
	case "tool_use":
		return core.StopReasonToolUse, nil
	case "pause_turn":
		return core.StopReasonPause, nil
	case "refusal":
		return core.StopReasonRefusal, nil
	default:
		return "", fmt.Errorf("unhandled stop reason: %s", reason)
	}
}

// toAnthropicSDKParams validates and converts a canonical request into SDK params.
func toAnthropicSDKParams(req *core.Request) (anthropic.MessageNewParams, error) {
	if req == nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("%w: request is nil", core.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Model) == "" {
		return anthropic.MessageNewParams{}, fmt.Errorf("%w: model is required", core.ErrInvalidRequest)
	}

	messages, err := toSDKMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}

	if strings.TrimSpace(req.System) != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 || len(req.ServerTools) > 0 {
		tools, err := toSDKTools(req.Tools, req.ServerTools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	if toolChoice, ok := toSDKToolChoice(req.ToolChoice); ok {
		params.ToolChoice = toolChoice
	}
	if userID := strings.TrimSpace(req.Metadata["user_id"]); userID != "" {
		params.Metadata = anthropic.MetadataParam{UserID: anthropic.String(userID)}
	}

	return params, nil
}

// toSDKMessages converts canonical conversation messages into Anthropic SDK messages.
func toSDKMessages(messages []core.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))

	for i, msg := range messages {
		if msg.Role != core.RoleUser && msg.Role != core.RoleAssistant {
			return nil, fmt.Errorf("%w: unsupported role %q", core.ErrInvalidRequest, msg.Role)
		}
		blocks, err := toSDKBlocks(msg.Content)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		if len(blocks) == 0 {
			continue
		}
		if msg.Role == core.RoleUser {
			out = append(out, anthropic.NewUserMessage(blocks...))
		} else {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
	}

	return out, nil
}

// toSDKBlocks converts content blocks in order. Server tool calls and blocks
// this package does not model are sent back in their wire form.
func toSDKBlocks(content []core.ContentBlock) ([]anthropic.ContentBlockParamUnion, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(content))
	for _, item := range content {
		switch block := item.(type) {
		case core.TextBlock:
			if block.Text == "" {
				continue
			}
			blocks = append(blocks, anthropic.NewTextBlock(block.Text))
		case core.ThinkingBlock:
			blocks = append(blocks, anthropic.NewThinkingBlock(block.Signature, block.Thinking))
		case core.ToolUseBlock:
			if strings.TrimSpace(block.ID) == "" || strings.TrimSpace(block.Name) == "" {
				return nil, fmt.Errorf("%w: tool_use block missing id or name", core.ErrInvalidRequest)
			}
			input := core.DecodeJSONObjectOrEmpty(block.Input)
			blocks = append(blocks, anthropic.NewToolUseBlock(block.ID, input, block.Name))
		case core.ToolResultBlock:
			if strings.TrimSpace(block.ToolUseID) == "" {
				return nil, fmt.Errorf("%w: tool_result block missing tool_use_id", core.ErrInvalidRequest)
			}
			content, err := toSDKToolResultContent(block.Content)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, anthropic.ContentBlockParamUnion{OfToolResult: &anthropic.ToolResultBlockParam{
				ToolUseID: block.ToolUseID,
				Content:   content,
				IsError:   anthropic.Bool(block.IsError),
			}})
		case core.ServerToolUseBlock, core.UnknownBlock:
			raw, err := core.MarshalBlock(block)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, rawSDKBlock(raw))
		default:
			return nil, fmt.Errorf("%w: unsupported content block %T", core.ErrInvalidRequest, item)
		}
	}
	return blocks, nil
}

// toSDKToolResultContent keeps text as text blocks and sends every other
// block (images, documents, kinds added later) in its wire form.
func toSDKToolResultContent(content []core.ContentBlock) ([]anthropic.ToolResultBlockParamContentUnion, error) {
	out := make([]anthropic.ToolResultBlockParamContentUnion, 0, len(content))
	for _, item := range content {
		if text, ok := item.(core.TextBlock); ok {
			out = append(out, anthropic.ToolResultBlockParamContentUnion{OfText: &anthropic.TextBlockParam{Text: text.Text}})
			continue
		}
		raw, err := core.MarshalBlock(item)
		if err != nil {
			return nil, err
		}
		out = append(out, param.Override[anthropic.ToolResultBlockParamContentUnion](raw))
	}
	return out, nil
}

// rawSDKBlock sends a block verbatim through a union with no variant set.
func rawSDKBlock(raw json.RawMessage) anthropic.ContentBlockParamUnion {
	return param.Override[anthropic.ContentBlockParamUnion](raw)
}

// toSDKTools converts client tool specs and server tool declarations into SDK tool definitions.
func toSDKTools(tools []core.ToolSpec, serverTools []core.ServerToolSpec) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools)+len(serverTools))
	for _, tool := range tools {
		schema, err := core.ParseToolSchema(tool.Schema)
		if err != nil {
			return nil, fmt.Errorf("decode tool schema for %q: %w", tool.Name, err)
		}
		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: schema.Properties,
			Required:   schema.Required,
		}
		toolParam := anthropic.ToolParam{
			Name:        tool.Name,
			InputSchema: inputSchema,
		}
		if strings.TrimSpace(tool.Description) != "" {
			toolParam.Description = anthropic.String(tool.Description)
		}

		out = append(out, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	for _, server := range serverTools {
		switch server.Type {
		case core.ServerToolWebSearch:
			search := anthropic.WebSearchTool20250305Param{}
			if server.MaxUses > 0 {
				search.MaxUses = anthropic.Int(int64(server.MaxUses))
			}
			out = append(out, anthropic.ToolUnionParam{OfWebSearchTool20250305: &search})
		default:
			return nil, fmt.Errorf("%w: unsupported server tool %q", core.ErrInvalidRequest, server.Type)
		}
	}
	return out, nil
}

// toSDKToolChoice maps canonical tool choice behavior to Anthropic SDK union params.
func toSDKToolChoice(choice core.ToolChoice) (anthropic.ToolChoiceUnionParam, bool) {
	switch choice.Type {
	case core.ToolChoiceAuto:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}, true
	case core.ToolChoiceAny:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}, true
	case core.ToolChoiceNone:
		none := anthropic.NewToolChoiceNoneParam()
		return anthropic.ToolChoiceUnionParam{OfNone: &none}, true
	case core.ToolChoiceTool:
		if strings.TrimSpace(choice.Name) == "" {
			return anthropic.ToolChoiceUnionParam{}, false
		}
		return anthropic.ToolChoiceParamOfTool(choice.Name), true
	default:
		return anthropic.ToolChoiceUnionParam{}, false
	}
}

// fromSDKMessage converts a complete SDK response into a canonical message.
func fromSDKMessage(msg *anthropic.Message) (*core.Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("anthropic create: empty response")
	}
	reason, err := mapStopReason(string(msg.StopReason))
	if err != nil {
		return nil, err
	}

	content := make([]core.ContentBlock, 0, len(msg.Content))
	for _, union := range msg.Content {
		block, err := fromSDKBlock(union.Type, union.RawJSON(), union.AsAny())
		if err != nil {
			return nil, err
		}
		content = append(content, block)
	}

	out := &core.Message{
		ID:         msg.ID,
		Role:       core.RoleAssistant,
		Content:    content,
		StopReason: reason,
	}
	applyStartUsage(&out.Usage, msg.Usage)
	out.Usage.TotalTokens = out.Usage.TokenCount()
	return out, nil
}

// fromSDKStartBlock converts the initial block carried by content_block_start.
func fromSDKStartBlock(union anthropic.ContentBlockStartEventContentBlockUnion) (core.ContentBlock, error) {
	return fromSDKBlock(union.Type, union.RawJSON(), union.AsAny())
}

// fromSDKBlock switches over the SDK variants shared by response content and
// stream start blocks. Anything unmodelled is preserved as an UnknownBlock.
func fromSDKBlock(blockType, rawJSON string, variant any) (core.ContentBlock, error) {
	switch block := variant.(type) {
	case anthropic.TextBlock:
		return core.TextBlock{Text: block.Text}, nil
	case anthropic.ThinkingBlock:
		return core.ThinkingBlock{Thinking: block.Thinking, Signature: block.Signature}, nil
	case anthropic.ToolUseBlock:
		input, err := core.MarshalToolInput(block.Input)
		if err != nil {
			return nil, fmt.Errorf("marshal tool_use input: %w", err)
		}
		return core.ToolUseBlock{ID: block.ID, Name: block.Name, Input: input}, nil
	case anthropic.ServerToolUseBlock:
		input, err := core.MarshalToolInput(block.Input)
		if err != nil {
			return nil, fmt.Errorf("marshal server_tool_use input: %w", err)
		}
		return core.ServerToolUseBlock{ID: block.ID, Name: string(block.Name), Input: input}, nil
	default:
		return core.UnknownBlock{
			Type: core.ContentType(blockType),
			Raw:  core.RawJSONFromString(rawJSON),
		}, nil
	}
}

// fromSDKDelta converts a content delta. Unmodelled delta kinds keep their
// type tag so the aggregator can skip them.
func fromSDKDelta(union anthropic.RawContentBlockDeltaUnion) core.Delta {
	switch delta := union.AsAny().(type) {
	case anthropic.TextDelta:
		return core.Delta{Type: core.DeltaText, Text: delta.Text}
	case anthropic.ThinkingDelta:
		return core.Delta{Type: core.DeltaThinking, Thinking: delta.Thinking}
	case anthropic.SignatureDelta:
		return core.Delta{Type: core.DeltaSignature, Signature: delta.Signature}
	case anthropic.InputJSONDelta:
		return core.Delta{Type: core.DeltaInputJSON, PartialJSON: delta.PartialJSON}
	default:
		return core.Delta{Type: core.DeltaType(union.Type)}
	}
}
