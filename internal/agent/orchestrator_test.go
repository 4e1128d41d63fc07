package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolrunner/internal/llm/core"
	mockprovider "toolrunner/internal/llm/providers/mock"
	"toolrunner/internal/tools"
)

func TestRunReturnsResponseWithoutToolRequests(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{Responses: []*core.Message{final("hello")}}
	o, err := New(Config{Service: mp})
	require.NoError(t, err)

	msg, err := o.Run(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Text())
	assert.Len(t, mp.Calls(), 1)
}

func TestRunAnswersEveryToolUseInOrder(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{Responses: []*core.Message{
		assistant(core.StopReasonToolUse,
			core.TextBlock{Text: "working"},
			toolUse("t1", "a", `{"n":1}`),
			toolUse("t2", "b", `{"n":2}`),
			toolUse("t3", "a", `{"n":3}`),
		),
		final("done"),
	}}
	o, err := New(Config{Service: mp, Registry: echoRegistry(t, "a", "b")})
	require.NoError(t, err)

	msg, err := o.Run(context.Background(), userRequest("go"))
	require.NoError(t, err)
	assert.Equal(t, "done", msg.Text())

	results := toolResults(t, mp, 1)
	assert.Equal(t, []string{"t1", "t2", "t3"}, resultIDs(results))
	assert.Equal(t, `a:{"n":1}`, core.JoinText(results[0].Content))
	assert.Equal(t, `b:{"n":2}`, core.JoinText(results[1].Content))
	for _, r := range results {
		assert.False(t, r.IsError)
	}

	roles := make([]core.Role, 0, 3)
	for _, m := range mp.Calls()[1].Messages {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []core.Role{core.RoleUser, core.RoleAssistant, core.RoleUser}, roles)
}

func TestServerToolUseIsNeverAnswered(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{Responses: []*core.Message{
		assistant(core.StopReasonToolUse, serverToolUse("s1"), toolUse("t1", "a", `{}`), serverToolUse("s2")),
		final("done"),
	}}
	o, err := New(Config{Service: mp, Registry: echoRegistry(t, "a")})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), userRequest("go"))
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, resultIDs(toolResults(t, mp, 1)))

	history := mp.Calls()[1].Messages
	assert.Equal(t, mp.Responses[0].Content, history[1].Content)
}

func TestServerToolUseOnlyTurnIsTerminal(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{Responses: []*core.Message{
		assistant(core.StopReasonStop, serverToolUse("s1"), core.TextBlock{Text: "found it"}),
	}}
	o, err := New(Config{Service: mp})
	require.NoError(t, err)

	msg, err := o.Run(context.Background(), userRequest("search"))
	require.NoError(t, err)
	assert.Equal(t, "found it", msg.Text())
	assert.Len(t, mp.Calls(), 1)
}

func TestMaxIterationsIsFatalAfterExactlyOneCall(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{Responses: []*core.Message{
		assistant(core.StopReasonToolUse, toolUse("t1", "a", `{}`)),
		final("never"),
	}}
	o, err := New(Config{Service: mp, Registry: echoRegistry(t, "a"), MaxIterations: 1})
	require.NoError(t, err)

	msg, err := o.Run(context.Background(), userRequest("go"))
	assert.Nil(t, msg)
	var maxErr *MaxIterationsExceededError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, 1, maxErr.Limit)
	assert.ErrorIs(t, err, ErrMaxIterationsExceeded)
	assert.Len(t, mp.Calls(), 1)
}

func TestFailingHandlerBecomesErrorResult(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	register(t, reg, "fail", failing)
	mp := &mockprovider.Provider{Responses: []*core.Message{
		assistant(core.StopReasonToolUse, toolUse("t1", "fail", `{}`)),
		final("recovered"),
	}}
	o, err := New(Config{Service: mp, Registry: reg})
	require.NoError(t, err)

	msg, err := o.Run(context.Background(), userRequest("go"))
	require.NoError(t, err)
	assert.Equal(t, "recovered", msg.Text())

	results := toolResults(t, mp, 1)
	require.Len(t, results, 1)
	assert.Equal(t, "t1", results[0].ToolUseID)
	assert.True(t, results[0].IsError)
	text := core.JoinText(results[0].Content)
	assert.True(t, strings.HasPrefix(text, "error: "), text)
	assert.Contains(t, text, "boom")
}

func TestUnknownToolBecomesErrorResult(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{Responses: []*core.Message{
		assistant(core.StopReasonToolUse, toolUse("g1", "ghost", `{}`)),
		final("ok"),
	}}
	o, err := New(Config{Service: mp})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), userRequest("go"))
	require.NoError(t, err)

	results := toolResults(t, mp, 1)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, core.JoinText(results[0].Content), "no handler registered for ghost")
}

func TestPanickingHandlerBecomesErrorResult(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	register(t, reg, "explode", func(ctx context.Context, input json.RawMessage) (tools.Result, error) {
		panic("kaboom")
	})
	mp := &mockprovider.Provider{Responses: []*core.Message{
		assistant(core.StopReasonToolUse, toolUse("t1", "explode", `{}`)),
		final("ok"),
	}}
	o, err := New(Config{Service: mp, Registry: reg})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), userRequest("go"))
	require.NoError(t, err)

	results := toolResults(t, mp, 1)
	assert.True(t, results[0].IsError)
	assert.Contains(t, core.JoinText(results[0].Content), "kaboom")
}

func TestTransportErrorPropagatesUnchanged(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{}
	o, err := New(Config{Service: mp})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), userRequest("go"))
	assert.ErrorIs(t, err, mockprovider.ErrScriptExhausted)
}

func TestSyncOrchestratorRejectsAsyncHandlers(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tools.Registration{
		Name: "slow",
		AsyncHandler: func(ctx context.Context, input json.RawMessage) *tools.Future {
			return tools.Resolved(tools.Result{}, nil)
		},
	}))

	_, err := New(Config{Service: &mockprovider.Provider{}, Registry: reg})
	assert.ErrorIs(t, err, ErrAsyncHandlerInSyncOrchestrator)

	_, err = NewStreaming(Config{Service: &mockprovider.Provider{}, Registry: reg})
	assert.ErrorIs(t, err, ErrAsyncHandlerInSyncOrchestrator)

	_, err = NewDualMode(DualModeConfig{Config: Config{Service: &mockprovider.Provider{}, Registry: reg}})
	assert.ErrorIs(t, err, ErrAsyncHandlerInSyncOrchestrator)
}

func TestAsyncHandlerRegisteredAfterConstructionFailsRun(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	mp := &mockprovider.Provider{Responses: []*core.Message{final("x")}}
	o, err := New(Config{Service: mp, Registry: reg})
	require.NoError(t, err)

	require.NoError(t, reg.Register(tools.Registration{
		Name: "slow",
		AsyncHandler: func(ctx context.Context, input json.RawMessage) *tools.Future {
			return tools.Resolved(tools.Result{}, nil)
		},
	}))
	_, err = o.Run(context.Background(), userRequest("go"))
	assert.ErrorIs(t, err, ErrAsyncHandlerInSyncOrchestrator)
	assert.Empty(t, mp.Calls())
}

func TestConstructorAndRunValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrServiceRequired)

	o, err := New(Config{Service: &mockprovider.Provider{}})
	require.NoError(t, err)
	_, err = o.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrRequestRequired)
}

func TestRunDetailedAccumulatesUsageAndStates(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{Responses: []*core.Message{
		assistant(core.StopReasonToolUse, toolUse("t1", "a", `{}`)),
		assistant(core.StopReasonToolUse, toolUse("t2", "a", `{}`)),
		final("done"),
	}}
	o, err := New(Config{Service: mp, Registry: echoRegistry(t, "a")})
	require.NoError(t, err)

	result, err := o.RunDetailed(context.Background(), userRequest("go"))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Iterations)
	assert.Equal(t, 30, result.Usage.InputTokens)
	assert.Equal(t, 15, result.Usage.OutputTokens)
	assert.Equal(t, 45, result.Usage.TotalTokens)
	assert.Len(t, result.Messages, 6)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, StateTerminated, result.State())
	assert.Equal(t, []State{
		StateAwaitingModel,
		StateDispatchingTools, StateAwaitingModel,
		StateDispatchingTools, StateAwaitingModel,
		StateTerminated,
	}, result.States)
	assertLegalTransitions(t, result.States)
}

func TestRunDetailedReportsFailedState(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{Responses: []*core.Message{
		assistant(core.StopReasonToolUse, toolUse("t1", "a", `{}`)),
	}}
	o, err := New(Config{Service: mp, Registry: echoRegistry(t, "a"), MaxIterations: 1})
	require.NoError(t, err)

	result, err := o.RunDetailed(context.Background(), userRequest("go"))
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Nil(t, result.Message)
	assert.Equal(t, StateFailed, result.State())
	assertLegalTransitions(t, result.States)
}

func TestRunDoesNotMutateCallerRequest(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{Responses: []*core.Message{
		assistant(core.StopReasonToolUse, toolUse("t1", "a", `{}`)),
		final("done"),
	}}
	o, err := New(Config{Service: mp, Registry: echoRegistry(t, "a")})
	require.NoError(t, err)

	req := userRequest("go")
	req.Tools = []core.ToolSpec{
		{Name: "a", Description: "stale"},
		{Name: "extra", Description: "caller tool"},
	}
	_, err = o.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, req.Messages, 1)
	assert.Len(t, req.Tools, 2)

	sent := mp.Calls()[0].Tools
	require.Len(t, sent, 2)
	assert.Equal(t, "extra", sent[0].Name)
	assert.Equal(t, "a", sent[1].Name)
	assert.Empty(t, sent[1].Description)
}

func TestCanceledContextStopsBeforeModelCall(t *testing.T) {
	t.Parallel()

	mp := &mockprovider.Provider{Responses: []*core.Message{final("x")}}
	o, err := New(Config{Service: mp})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = o.Run(ctx, userRequest("go"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, mp.Calls())
}

func TestHandlerCancellationAbortsRun(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	reg := tools.NewRegistry()
	register(t, reg, "quit", func(ctx context.Context, input json.RawMessage) (tools.Result, error) {
		cancel()
		return tools.Result{}, ctx.Err()
	})
	mp := &mockprovider.Provider{Responses: []*core.Message{
		assistant(core.StopReasonToolUse, toolUse("t1", "quit", `{}`)),
		final("never"),
	}}
	o, err := New(Config{Service: mp, Registry: reg})
	require.NoError(t, err)

	_, err = o.Run(ctx, userRequest("go"))
	assert.True(t, errors.Is(err, context.Canceled), "err = %v", err)
	assert.Len(t, mp.Calls(), 1)
}

func TestTruncateToolResultContent(t *testing.T) {
	t.Parallel()

	short := strings.Repeat("x", maxToolResultContentLen)
	assert.Equal(t, short, truncateToolResultContent(short))

	long := strings.Repeat("h", toolResultHeadLen) + strings.Repeat("m", 5000) + strings.Repeat("t", toolResultTailLen)
	got := truncateToolResultContent(long)
	assert.Equal(t, toolResultHeadLen+len(toolResultTruncateMark)+toolResultTailLen, len(got))
	assert.True(t, strings.HasPrefix(got, strings.Repeat("h", toolResultHeadLen)+toolResultTruncateMark))
	assert.True(t, strings.HasSuffix(got, strings.Repeat("t", toolResultTailLen)))
}

func TestEmptyHandlerOutputIsReportedAsOK(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	register(t, reg, "noop", func(ctx context.Context, input json.RawMessage) (tools.Result, error) {
		return tools.Result{}, nil
	})
	mp := &mockprovider.Provider{Responses: []*core.Message{
		assistant(core.StopReasonToolUse, toolUse("t1", "noop", `{}`)),
		final("done"),
	}}
	o, err := New(Config{Service: mp, Registry: reg})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), userRequest("go"))
	require.NoError(t, err)
	assert.Equal(t, "ok", core.JoinText(toolResults(t, mp, 1)[0].Content))
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to State
		want     bool
	}{
		{StateAwaitingModel, StateDispatchingTools, true},
		{StateAwaitingModel, StateTerminated, true},
		{StateAwaitingModel, StateFailed, true},
		{StateDispatchingTools, StateAwaitingModel, true},
		{StateDispatchingTools, StateFailed, true},
		{StateAwaitingModel, StateAwaitingModel, false},
		{StateTerminated, StateAwaitingModel, false},
		{StateFailed, StateDispatchingTools, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestHandlerBlocksReachTheModelInOrder(t *testing.T) {
	t.Parallel()

	image := core.UnknownBlock{
		Type: "image",
		Raw:  json.RawMessage(`{"type":"image","source":{"type":"base64","media_type":"image/png","data":"iVBORw0K"}}`),
	}
	reg := tools.NewRegistry()
	register(t, reg, "screenshot", func(ctx context.Context, input json.RawMessage) (tools.Result, error) {
		return tools.Result{
			Content: "captured",
			Blocks:  []core.ContentBlock{core.TextBlock{Text: "800x600"}, image},
		}, nil
	})
	mp := &mockprovider.Provider{Responses: []*core.Message{
		assistant(core.StopReasonToolUse, toolUse("t1", "screenshot", `{}`)),
		final("done"),
	}}
	o, err := New(Config{Service: mp, Registry: reg})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), userRequest("go"))
	require.NoError(t, err)

	results := toolResults(t, mp, 1)
	require.Len(t, results, 1)
	assert.False(t, results[0].IsError)
	assert.Equal(t, []core.ContentBlock{
		core.TextBlock{Text: "captured"},
		core.TextBlock{Text: "800x600"},
		image,
	}, results[0].Content)
}

func TestHandlerBlocksWithoutTextAreNotPaddedWithOK(t *testing.T) {
	t.Parallel()

	doc := core.UnknownBlock{Type: "document", Raw: json.RawMessage(`{"type":"document","source":{"type":"text","media_type":"text/plain","data":"notes"}}`)}
	result := successResult("t1", tools.Result{Blocks: []core.ContentBlock{nil, doc}})
	assert.Equal(t, []core.ContentBlock{doc}, result.Content)

	long := strings.Repeat("x", maxToolResultContentLen+1)
	result = successResult("t2", tools.Result{Blocks: []core.ContentBlock{core.TextBlock{Text: long}}})
	require.Len(t, result.Content, 1)
	assert.Equal(t, truncateToolResultContent(long), core.JoinText(result.Content))
}
