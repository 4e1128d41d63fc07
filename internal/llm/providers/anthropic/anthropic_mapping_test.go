package anthropicprovider

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"toolrunner/internal/llm/core"
)

const testModel = "claude-sonnet-4-20250514"

// wireParams converts req and returns the JSON body the SDK would send.
func wireParams(t *testing.T, req *core.Request) gjson.Result {
	t.Helper()
	params, err := toAnthropicSDKParams(req)
	if err != nil {
		t.Fatalf("toAnthropicSDKParams() error = %v", err)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return gjson.ParseBytes(raw)
}

// expectPaths fails for every gjson path whose value differs from want.
func expectPaths(t *testing.T, body gjson.Result, want map[string]string) {
	t.Helper()
	for path, value := range want {
		if got := body.Get(path).String(); got != value {
			t.Errorf("%s = %q, want %q", path, got, value)
		}
	}
}

func TestToAnthropicSDKParamsUserText(t *testing.T) {
	t.Parallel()

	text := "  first line\nsecond line  "
	body := wireParams(t, &core.Request{
		Model:     testModel,
		MaxTokens: 512,
		Messages:  []core.Message{core.NewTextMessage(core.RoleUser, text)},
	})

	expectPaths(t, body, map[string]string{
		"model":                     testModel,
		"max_tokens":                "512",
		"messages.#":                "1",
		"messages.0.role":           "user",
		"messages.0.content.#":      "1",
		"messages.0.content.0.type": "text",
		"messages.0.content.0.text": text,
	})
}

func TestToAnthropicSDKParamsDefaultsMaxTokensAndSkipsEmptyMessages(t *testing.T) {
	t.Parallel()

	body := wireParams(t, &core.Request{
		Model: testModel,
		Messages: []core.Message{
			{Role: core.RoleAssistant, Content: []core.ContentBlock{core.TextBlock{}}},
			core.NewTextMessage(core.RoleUser, "hi"),
		},
	})

	expectPaths(t, body, map[string]string{
		"max_tokens":      "1024",
		"messages.#":      "1",
		"messages.0.role": "user",
	})
}

func TestToAnthropicSDKParamsToolResultsShareOneUserMessage(t *testing.T) {
	t.Parallel()

	body := wireParams(t, &core.Request{
		Model: testModel,
		Messages: []core.Message{{
			Role: core.RoleUser,
			Content: []core.ContentBlock{
				core.ToolResultBlock{ToolUseID: "tool_1", Content: []core.ContentBlock{core.TextBlock{Text: "first"}}},
				core.ToolResultBlock{ToolUseID: "tool_2", Content: []core.ContentBlock{core.TextBlock{Text: "error: boom"}}, IsError: true},
			},
		}},
	})

	expectPaths(t, body, map[string]string{
		"messages.#":                       "1",
		"messages.0.content.#":             "2",
		"messages.0.content.0.tool_use_id": "tool_1",
		"messages.0.content.1.tool_use_id": "tool_2",
		"messages.0.content.1.is_error":    "true",
	})
	if body.Get("messages.0.content.0.is_error").Bool() {
		t.Fatalf("first tool result flagged as error")
	}
	if !strings.Contains(body.Get("messages.0.content.1.content").Raw, "error: boom") {
		t.Fatalf("tool result content = %s, want error text", body.Get("messages.0.content.1.content").Raw)
	}
}

func TestToAnthropicSDKParamsToolResultKeepsStructuredContent(t *testing.T) {
	t.Parallel()

	image := `{"type":"image","source":{"type":"base64","media_type":"image/png","data":"iVBORw0K"}}`
	body := wireParams(t, &core.Request{
		Model: testModel,
		Messages: []core.Message{{
			Role: core.RoleUser,
			Content: []core.ContentBlock{core.ToolResultBlock{
				ToolUseID: "tool_1",
				Content: []core.ContentBlock{
					core.TextBlock{Text: "screenshot attached"},
					core.UnknownBlock{Type: "image", Raw: json.RawMessage(image)},
				},
			}},
		}},
	})

	expectPaths(t, body, map[string]string{
		"messages.0.content.0.type":                        "tool_result",
		"messages.0.content.0.content.#":                   "2",
		"messages.0.content.0.content.0.type":              "text",
		"messages.0.content.0.content.0.text":              "screenshot attached",
		"messages.0.content.0.content.1.type":              "image",
		"messages.0.content.0.content.1.source.media_type": "image/png",
		"messages.0.content.0.content.1.source.data":       "iVBORw0K",
	})
}

func TestToAnthropicSDKParamsAssistantBlocksKeepOrder(t *testing.T) {
	t.Parallel()

	body := wireParams(t, &core.Request{
		Model: testModel,
		Messages: []core.Message{{
			Role: core.RoleAssistant,
			Content: []core.ContentBlock{
				core.ThinkingBlock{Thinking: "plan", Signature: "sig"},
				core.TextBlock{Text: "let me read that"},
				core.ServerToolUseBlock{ID: "srv_1", Name: "web_search", Input: json.RawMessage(`{"query":"go"}`)},
				core.UnknownBlock{Type: "web_search_tool_result", Raw: json.RawMessage(`{"type":"web_search_tool_result","tool_use_id":"srv_1","content":[]}`)},
				core.ToolUseBlock{ID: "toolu_1", Name: "read", Input: json.RawMessage(`{"path":"main.go"}`)},
			},
		}},
	})

	got := body.Get("messages.0.content.#.type").Array()
	want := []string{"thinking", "text", "server_tool_use", "web_search_tool_result", "tool_use"}
	if len(got) != len(want) {
		t.Fatalf("block types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Fatalf("block %d type = %q, want %q", i, got[i].String(), want[i])
		}
	}
	expectPaths(t, body, map[string]string{
		"messages.0.role":                  "assistant",
		"messages.0.content.0.thinking":    "plan",
		"messages.0.content.0.signature":   "sig",
		"messages.0.content.2.id":          "srv_1",
		"messages.0.content.2.input.query": "go",
		"messages.0.content.3.tool_use_id": "srv_1",
		"messages.0.content.4.id":          "toolu_1",
		"messages.0.content.4.name":        "read",
		"messages.0.content.4.input.path":  "main.go",
	})
}

func TestToAnthropicSDKParamsTools(t *testing.T) {
	t.Parallel()

	type readInput struct {
		Path string `json:"path"`
		Head int    `json:"head,omitempty"`
	}
	spec, err := core.NewToolSpecFromStruct("read", "Read file content", readInput{})
	if err != nil {
		t.Fatalf("NewToolSpecFromStruct() error = %v", err)
	}

	body := wireParams(t, &core.Request{
		Model:       testModel,
		Messages:    []core.Message{core.NewTextMessage(core.RoleUser, "search")},
		Tools:       []core.ToolSpec{spec},
		ServerTools: []core.ServerToolSpec{{Type: core.ServerToolWebSearch, MaxUses: 3}},
	})

	expectPaths(t, body, map[string]string{
		"tools.#":                         "2",
		"tools.0.name":                    "read",
		"tools.0.description":             "Read file content",
		"tools.0.input_schema.type":       "object",
		"tools.0.input_schema.required.0": "path",
		"tools.1.type":                    "web_search_20250305",
		"tools.1.name":                    "web_search",
		"tools.1.max_uses":                "3",
	})
	if !body.Get("tools.0.input_schema.properties.head").Exists() {
		t.Fatalf("head property missing from %s", body.Get("tools.0.input_schema").Raw)
	}
}

func TestToAnthropicSDKParamsOptionalFields(t *testing.T) {
	t.Parallel()

	temp := 0.25
	body := wireParams(t, &core.Request{
		Model:       testModel,
		System:      "You are concise.",
		Temperature: &temp,
		Metadata:    map[string]string{"user_id": "user-123"},
		ToolChoice:  core.ToolChoice{Type: core.ToolChoiceAny},
		Messages:    []core.Message{core.NewTextMessage(core.RoleUser, "hello")},
	})

	expectPaths(t, body, map[string]string{
		"system.0.text":    "You are concise.",
		"temperature":      "0.25",
		"metadata.user_id": "user-123",
		"tool_choice.type": "any",
	})
}

func TestToAnthropicSDKParamsRejectsInvalidRequests(t *testing.T) {
	t.Parallel()

	tests := map[string]*core.Request{
		"nil request":    nil,
		"blank model":    {Model: "   "},
		"unknown role":   {Model: testModel, Messages: []core.Message{{Role: "moderator"}}},
		"result no id":   {Model: testModel, Messages: []core.Message{{Role: core.RoleUser, Content: []core.ContentBlock{core.ToolResultBlock{}}}}},
		"tool_use no id": {Model: testModel, Messages: []core.Message{{Role: core.RoleAssistant, Content: []core.ContentBlock{core.ToolUseBlock{Name: "read"}}}}},
		"server tool":    {Model: testModel, ServerTools: []core.ServerToolSpec{{Type: "code_execution"}}},
		"bad schema":     {Model: testModel, Tools: []core.ToolSpec{{Name: "x", Schema: json.RawMessage(`{"type":"array"}`)}}},
	}
	for name, req := range tests {
		if _, err := toAnthropicSDKParams(req); !errors.Is(err, core.ErrInvalidRequest) {
			t.Fatalf("%s: error = %v, want ErrInvalidRequest", name, err)
		}
	}
}

func TestMapStopReason(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]core.StopReason{
		"":              "",
		"end_turn":      core.StopReasonStop,
		"stop_sequence": core.StopReasonStop,
		"max_tokens":    core.StopReasonLength,
		"tool_use":      core.StopReasonToolUse,
		"pause_turn":    core.StopReasonPause,
		"refusal":       core.StopReasonRefusal,
	} {
		got, err := mapStopReason(in)
		if err != nil || got != want {
			t.Fatalf("mapStopReason(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := mapStopReason("unknown_reason"); err == nil {
		t.Fatalf("mapStopReason(unknown) expected error")
	}
}

func TestToSDKToolChoice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		choice   core.ToolChoice
		wantType string
		wantName string
	}{
		{choice: core.ToolChoice{Type: core.ToolChoiceAuto}, wantType: "auto"},
		{choice: core.ToolChoice{Type: core.ToolChoiceAny}, wantType: "any"},
		{choice: core.ToolChoice{Type: core.ToolChoiceNone}, wantType: "none"},
		{choice: core.ToolChoice{Type: core.ToolChoiceTool, Name: "read"}, wantType: "tool", wantName: "read"},
		{choice: core.ToolChoice{Type: core.ToolChoiceTool, Name: "  "}},
		{choice: core.ToolChoice{Type: "custom"}},
		{choice: core.ToolChoice{}},
	}
	for _, tc := range tests {
		got, ok := toSDKToolChoice(tc.choice)
		if ok != (tc.wantType != "") {
			t.Fatalf("toSDKToolChoice(%+v) ok = %v", tc.choice, ok)
		}
		if !ok {
			continue
		}
		raw, err := json.Marshal(got)
		if err != nil {
			t.Fatalf("marshal tool choice: %v", err)
		}
		body := gjson.ParseBytes(raw)
		if body.Get("type").String() != tc.wantType || body.Get("name").String() != tc.wantName {
			t.Fatalf("toSDKToolChoice(%+v) = %s", tc.choice, raw)
		}
	}
}
