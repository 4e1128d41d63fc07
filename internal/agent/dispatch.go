package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"toolrunner/internal/llm/core"
	"toolrunner/internal/llm/stream"
	"toolrunner/internal/metrics"
	"toolrunner/internal/tools"
)

const (
	maxToolResultContentLen = 10_000
	toolResultHeadLen       = 4_000
	toolResultTailLen       = 4_000
	toolResultTruncateMark  = "\n...[truncated]...\n"
)

// dispatch answers every client tool_use in msg, in document order, with one
// tool_result each. Handler failures become error results; only cancellation
// and configuration errors abort the run.
func (e *engine) dispatch(ctx context.Context, r *runState, msg *core.Message) (core.Message, error) {
	results := make([]core.ContentBlock, 0, len(msg.Content))
	for _, inv := range Invocations(msg) {
		use, ok := inv.Block.(core.ToolUseBlock)
		if !ok {
			continue
		}
		result, err := e.invoke(ctx, r, use)
		if err != nil {
			return core.Message{}, err
		}
		results = append(results, result)
	}
	return core.Message{Role: core.RoleUser, Content: results}, nil
}

func (e *engine) invoke(ctx context.Context, r *runState, use core.ToolUseBlock) (core.ToolResultBlock, error) {
	logger := r.logger.With("tool", use.Name, "tool_use_id", use.ID)

	result, err := e.execute(ctx, use)
	if err != nil {
		if errors.Is(err, ErrAsyncHandlerInSyncOrchestrator) {
			return core.ToolResultBlock{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return core.ToolResultBlock{}, ctxErr
		}
		outcome := failureOutcome(err)
		e.metrics.ToolInvocation(use.Name, outcome)
		logger.Debug("tool failed", "outcome", outcome, "error", err)
		return toolResult(use.ID, truncateToolResultContent("error: "+err.Error()), true), nil
	}

	e.metrics.ToolInvocation(use.Name, metrics.OutcomeOK)
	logger.Debug("tool succeeded", "bytes", len(result.Content), "blocks", len(result.Blocks))
	return successResult(use.ID, result), nil
}

func (e *engine) execute(ctx context.Context, use core.ToolUseBlock) (tools.Result, error) {
	if use.InputError != nil {
		return tools.Result{}, use.InputError
	}
	reg, ok := e.registry.Lookup(use.Name)
	if !ok {
		return tools.Result{}, &UnknownToolError{ToolName: use.Name, ToolUseID: use.ID}
	}
	if reg.IsAsync() && !e.async {
		return tools.Result{}, fmt.Errorf("%w: %s", ErrAsyncHandlerInSyncOrchestrator, use.Name)
	}

	result, err := callHandler(ctx, reg, use.Input)
	if err != nil {
		return tools.Result{}, &ToolExecutionError{ToolName: use.Name, ToolUseID: use.ID, Err: err}
	}
	return result, nil
}

// callHandler converts a panic in a synchronous handler, or in the call that
// starts an async one, into tools.ErrHandlerPanic.
func callHandler(ctx context.Context, reg tools.Registration, input json.RawMessage) (result tools.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", tools.ErrHandlerPanic, p)
		}
	}()

	if !reg.IsAsync() {
		return reg.Handler(ctx, input)
	}
	future := reg.AsyncHandler(ctx, input)
	if future == nil {
		return tools.Result{}, errors.New("async handler returned no future")
	}
	return future.Await(ctx)
}

func failureOutcome(err error) string {
	var unknown *UnknownToolError
	switch {
	case errors.As(err, &unknown):
		return metrics.OutcomeUnknownTool
	case errors.Is(err, stream.ErrMalformedToolInput):
		return metrics.OutcomeMalformed
	default:
		return metrics.OutcomeError
	}
}

func toolResult(toolUseID, content string, isError bool) core.ToolResultBlock {
	return core.ToolResultBlock{
		ToolUseID: toolUseID,
		Content:   []core.ContentBlock{core.TextBlock{Text: content}},
		IsError:   isError,
	}
}

// successResult keeps a handler's blocks in order after its text. Text blocks
// are truncated like plain content; a result with nothing in it reads "ok".
func successResult(toolUseID string, result tools.Result) core.ToolResultBlock {
	content := make([]core.ContentBlock, 0, len(result.Blocks)+1)
	if result.Content != "" {
		content = append(content, core.TextBlock{Text: truncateToolResultContent(result.Content)})
	}
	for _, block := range result.Blocks {
		switch b := block.(type) {
		case nil:
		case core.TextBlock:
			if b.Text != "" {
				content = append(content, core.TextBlock{Text: truncateToolResultContent(b.Text)})
			}
		default:
			content = append(content, block)
		}
	}
	if len(content) == 0 {
		return toolResult(toolUseID, "ok", false)
	}
	return core.ToolResultBlock{ToolUseID: toolUseID, Content: content}
}

func truncateToolResultContent(content string) string {
	if len(content) <= maxToolResultContentLen {
		return content
	}
	return content[:toolResultHeadLen] + toolResultTruncateMark + content[len(content)-toolResultTailLen:]
}
