package anthropicprovider

import (
	"encoding/json"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"

	"toolrunner/internal/llm/core"
)

// TestContentBlockStartSupportsAllSDKVariants verifies content_block_start mapping for all known block variants.
func TestContentBlockStartSupportsAllSDKVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		rawEvent  string
		wantIndex int
		check     func(t *testing.T, block core.ContentBlock)
	}{
		{
			name:      "text",
			rawEvent:  `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
			wantIndex: 0,
			check: func(t *testing.T, block core.ContentBlock) {
				if _, ok := block.(core.TextBlock); !ok {
					t.Fatalf("block = %T, want TextBlock", block)
				}
			},
		},
		{
			name:      "thinking",
			rawEvent:  `{"type":"content_block_start","index":1,"content_block":{"type":"thinking","thinking":"plan","signature":"sig"}}`,
			wantIndex: 1,
			check: func(t *testing.T, block core.ContentBlock) {
				thinking, ok := block.(core.ThinkingBlock)
				if !ok || thinking.Thinking != "plan" || thinking.Signature != "sig" {
					t.Fatalf("block = %#v, want thinking plan/sig", block)
				}
			},
		},
		{
			name:      "redacted_thinking",
			rawEvent:  `{"type":"content_block_start","index":2,"content_block":{"type":"redacted_thinking","data":"encrypted"}}`,
			wantIndex: 2,
			check: func(t *testing.T, block core.ContentBlock) {
				unknown, ok := block.(core.UnknownBlock)
				if !ok || unknown.Type != "redacted_thinking" || len(unknown.Raw) == 0 {
					t.Fatalf("block = %#v, want pass-through redacted_thinking", block)
				}
			},
		},
		{
			name:      "tool_use",
			rawEvent:  `{"type":"content_block_start","index":3,"content_block":{"type":"tool_use","id":"toolu_1","name":"Read","input":{"path":"main.go"}}}`,
			wantIndex: 3,
			check: func(t *testing.T, block core.ContentBlock) {
				use, ok := block.(core.ToolUseBlock)
				if !ok || use.ID != "toolu_1" || use.Name != "Read" || string(use.Input) != `{"path":"main.go"}` {
					t.Fatalf("block = %#v, want tool_use toolu_1", block)
				}
			},
		},
		{
			name:      "server_tool_use",
			rawEvent:  `{"type":"content_block_start","index":4,"content_block":{"type":"server_tool_use","id":"srv_1","name":"web_search","input":{"query":"go"}}}`,
			wantIndex: 4,
			check: func(t *testing.T, block core.ContentBlock) {
				use, ok := block.(core.ServerToolUseBlock)
				if !ok || use.ID != "srv_1" || use.Name != "web_search" {
					t.Fatalf("block = %#v, want server_tool_use srv_1", block)
				}
			},
		},
		{
			name:      "web_search_tool_result",
			rawEvent:  `{"type":"content_block_start","index":5,"content_block":{"type":"web_search_tool_result","tool_use_id":"srv_1","content":{"type":"web_search_tool_result_error","error_code":"unavailable"}}}`,
			wantIndex: 5,
			check: func(t *testing.T, block core.ContentBlock) {
				if block.BlockType() != "web_search_tool_result" {
					t.Fatalf("block type = %q, want web_search_tool_result", block.BlockType())
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var sdkEvent anthropic.MessageStreamEventUnion
			if err := json.Unmarshal([]byte(tc.rawEvent), &sdkEvent); err != nil {
				t.Fatalf("unmarshal sdk event: %v", err)
			}

			p := &Provider{}
			got, ok, err := p.convertSDKStreamEvent(sdkEvent, "claude-sonnet-4", &streamState{})
			if err != nil {
				t.Fatalf("convertSDKStreamEvent() error = %v", err)
			}
			if !ok {
				t.Fatalf("expected a protocol event")
			}
			if got.Type != core.EventContentBlockStart {
				t.Fatalf("event type = %q, want %q", got.Type, core.EventContentBlockStart)
			}
			if got.Index != tc.wantIndex {
				t.Fatalf("event index = %d, want %d", got.Index, tc.wantIndex)
			}
			tc.check(t, got.Block)
		})
	}
}

func TestConvertSDKStreamEventDeltaVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rawEvent string
		want     core.Delta
	}{
		{
			rawEvent: `{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"hm"}}`,
			want:     core.Delta{Type: core.DeltaThinking, Thinking: "hm"},
		},
		{
			rawEvent: `{"type":"content_block_delta","index":0,"delta":{"type":"signature_delta","signature":"abc"}}`,
			want:     core.Delta{Type: core.DeltaSignature, Signature: "abc"},
		},
		{
			rawEvent: `{"type":"content_block_delta","index":0,"delta":{"type":"citations_delta","citation":{}}}`,
			want:     core.Delta{Type: "citations_delta"},
		},
	}

	for _, tc := range tests {
		var sdkEvent anthropic.MessageStreamEventUnion
		if err := json.Unmarshal([]byte(tc.rawEvent), &sdkEvent); err != nil {
			t.Fatalf("unmarshal sdk event: %v", err)
		}
		got, ok, err := (&Provider{}).convertSDKStreamEvent(sdkEvent, "m", &streamState{})
		if err != nil || !ok {
			t.Fatalf("convertSDKStreamEvent() = (%v, %v)", ok, err)
		}
		if got.Delta != tc.want {
			t.Fatalf("delta = %+v, want %+v", got.Delta, tc.want)
		}
	}
}
