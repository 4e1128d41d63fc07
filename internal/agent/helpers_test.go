package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"toolrunner/internal/llm/core"
	mockprovider "toolrunner/internal/llm/providers/mock"
	"toolrunner/internal/tools"
)

func toolUse(id, name, input string) core.ToolUseBlock {
	return core.ToolUseBlock{ID: id, Name: name, Input: json.RawMessage(input)}
}

func serverToolUse(id string) core.ServerToolUseBlock {
	return core.ServerToolUseBlock{ID: id, Name: "web_search", Input: json.RawMessage(`{"query":"go"}`)}
}

func assistant(stop core.StopReason, blocks ...core.ContentBlock) *core.Message {
	return &core.Message{
		Role:       core.RoleAssistant,
		Content:    blocks,
		StopReason: stop,
		Usage:      core.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

func final(text string) *core.Message {
	return assistant(core.StopReasonStop, core.TextBlock{Text: text})
}

func userRequest(text string) *core.Request {
	return &core.Request{
		Model:    "mock",
		Messages: []core.Message{core.NewTextMessage(core.RoleUser, text)},
	}
}

func echoRegistry(t *testing.T, names ...string) *tools.Registry {
	t.Helper()

	reg := tools.NewRegistry()
	for _, name := range names {
		require.NoError(t, reg.Register(tools.Registration{
			Name: name,
			Handler: func(ctx context.Context, input json.RawMessage) (tools.Result, error) {
				return tools.Result{Content: name + ":" + string(input)}, nil
			},
		}))
	}
	return reg
}

func register(t *testing.T, reg *tools.Registry, name string, handler tools.Handler) {
	t.Helper()
	require.NoError(t, reg.Register(tools.Registration{Name: name, Handler: handler}))
}

func failing(ctx context.Context, input json.RawMessage) (tools.Result, error) {
	return tools.Result{}, errors.New("boom")
}

// toolResults returns the tool_result blocks of the user message the n-th
// model call received last.
func toolResults(t *testing.T, mp *mockprovider.Provider, call int) []core.ToolResultBlock {
	t.Helper()

	calls := mp.Calls()
	require.Greater(t, len(calls), call)
	msgs := calls[call].Messages
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	require.Equal(t, core.RoleUser, last.Role)

	out := make([]core.ToolResultBlock, 0, len(last.Content))
	for _, block := range last.Content {
		result, ok := block.(core.ToolResultBlock)
		require.True(t, ok, "unexpected %T in tool result message", block)
		out = append(out, result)
	}
	return out
}

func resultIDs(results []core.ToolResultBlock) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ToolUseID)
	}
	return ids
}

func assertLegalTransitions(t *testing.T, states []State) {
	t.Helper()

	require.NotEmpty(t, states)
	require.Equal(t, StateAwaitingModel, states[0])
	for i := 1; i < len(states); i++ {
		require.True(t, states[i-1].CanTransition(states[i]), "illegal transition %s -> %s", states[i-1], states[i])
	}
	require.True(t, states[len(states)-1].Terminal())
}
