package mockprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"toolrunner/internal/llm/core"
)

// ErrScriptExhausted is returned when a call arrives after every scripted response was used.
var ErrScriptExhausted = errors.New("mock provider: script exhausted")

// Provider replays scripted responses for deterministic tests. Call n of
// Create or Stream answers with Responses[n]; Stream uses Streams[n] instead
// when it is set, so tests can inject malformed or failing event sequences.
type Provider struct {
	Responses []*core.Message
	Streams   [][]core.StreamEvent
	Delay     time.Duration

	mu       sync.Mutex
	requests []core.Request
}

var _ core.MessageService = (*Provider)(nil)

// Create returns the next scripted message.
func (m *Provider) Create(ctx context.Context, req *core.Request) (*core.Message, error) {
	call := m.record(req)
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if call >= len(m.Responses) || m.Responses[call] == nil {
		return nil, fmt.Errorf("%w: create call %d", ErrScriptExhausted, call)
	}
	msg := *m.Responses[call]
	msg.Content = slices.Clone(msg.Content)
	return &msg, nil
}

// Stream emits the next scripted event sequence in order until exhaustion or cancellation.
func (m *Provider) Stream(ctx context.Context, req *core.Request) (<-chan core.StreamEvent, error) {
	call := m.record(req)

	var events []core.StreamEvent
	switch {
	case call < len(m.Streams) && m.Streams[call] != nil:
		events = m.Streams[call]
	case call < len(m.Responses) && m.Responses[call] != nil:
		events = Script(m.Responses[call])
	default:
		return nil, fmt.Errorf("%w: stream call %d", ErrScriptExhausted, call)
	}

	out := make(chan core.StreamEvent, 1)
	go func() {
		defer close(out)
		for _, ev := range events {
			if err := m.wait(ctx); err != nil {
				core.SendTerminalEvent(ctx, out, core.StreamEvent{Type: core.EventError, Err: err})
				return
			}
			// A scripted error ends the stream the way a transport failure does.
			if ev.Type == core.EventError {
				core.SendTerminalEvent(ctx, out, ev)
				return
			}
			if err := core.SendEvent(ctx, out, ev); err != nil {
				core.SendTerminalEvent(ctx, out, core.StreamEvent{Type: core.EventError, Err: err})
				return
			}
		}
	}()

	return out, nil
}

// Calls returns a snapshot of every request received so far.
func (m *Provider) Calls() []core.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.requests)
}

func (m *Provider) record(req *core.Request) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var snapshot core.Request
	if req != nil {
		snapshot = *req
		snapshot.Messages = slices.Clone(req.Messages)
		snapshot.Tools = slices.Clone(req.Tools)
		snapshot.ServerTools = slices.Clone(req.ServerTools)
	}
	m.requests = append(m.requests, snapshot)
	return len(m.requests) - 1
}

func (m *Provider) wait(ctx context.Context) error {
	if m.Delay <= 0 {
		return ctx.Err()
	}
	return core.SleepContext(ctx, m.Delay)
}

// Script renders a complete message as the event sequence a streaming
// service would emit for it: every block starts empty and is filled by deltas.
func Script(msg *core.Message) []core.StreamEvent {
	events := []core.StreamEvent{{
		Type:    core.EventMessageStart,
		Message: &core.Message{ID: msg.ID, Role: core.RoleAssistant},
		Usage:   &core.Usage{InputTokens: msg.Usage.InputTokens},
	}}

	for i, block := range msg.Content {
		switch b := block.(type) {
		case core.TextBlock:
			events = append(events, core.StreamEvent{Type: core.EventContentBlockStart, Index: i, Block: core.TextBlock{}})
			if b.Text != "" {
				events = append(events, core.StreamEvent{Type: core.EventContentBlockDelta, Index: i, Delta: core.Delta{Type: core.DeltaText, Text: b.Text}})
			}
		case core.ThinkingBlock:
			events = append(events,
				core.StreamEvent{Type: core.EventContentBlockStart, Index: i, Block: core.ThinkingBlock{}},
				core.StreamEvent{Type: core.EventContentBlockDelta, Index: i, Delta: core.Delta{Type: core.DeltaThinking, Thinking: b.Thinking}},
				core.StreamEvent{Type: core.EventContentBlockDelta, Index: i, Delta: core.Delta{Type: core.DeltaSignature, Signature: b.Signature}},
			)
		case core.ToolUseBlock:
			events = append(events, core.StreamEvent{Type: core.EventContentBlockStart, Index: i, Block: core.ToolUseBlock{ID: b.ID, Name: b.Name, Input: json.RawMessage("{}")}})
			events = appendInputDelta(events, i, b.Input)
		case core.ServerToolUseBlock:
			events = append(events, core.StreamEvent{Type: core.EventContentBlockStart, Index: i, Block: core.ServerToolUseBlock{ID: b.ID, Name: b.Name, Input: json.RawMessage("{}")}})
			events = appendInputDelta(events, i, b.Input)
		default:
			events = append(events, core.StreamEvent{Type: core.EventContentBlockStart, Index: i, Block: block})
		}
		events = append(events, core.StreamEvent{Type: core.EventContentBlockStop, Index: i})
	}

	return append(events,
		core.StreamEvent{Type: core.EventMessageDelta, StopReason: msg.StopReason, Usage: msg.Usage.Clone()},
		core.StreamEvent{Type: core.EventMessageStop},
	)
}

// appendInputDelta splits tool input into two fragments.
func appendInputDelta(events []core.StreamEvent, index int, input []byte) []core.StreamEvent {
	raw := string(input)
	if raw == "" || raw == "{}" {
		return events
	}
	half := len(raw) / 2
	return append(events,
		core.StreamEvent{Type: core.EventContentBlockDelta, Index: index, Delta: core.Delta{Type: core.DeltaInputJSON, PartialJSON: raw[:half]}},
		core.StreamEvent{Type: core.EventContentBlockDelta, Index: index, Delta: core.Delta{Type: core.DeltaInputJSON, PartialJSON: raw[half:]}},
	)
}
