package agent

import (
	"errors"
	"fmt"

	"toolrunner/internal/llm/stream"
)

var (
	// ErrServiceRequired indicates a missing message service.
	ErrServiceRequired = errors.New("message service is required")
	// ErrRequestRequired indicates a nil run request.
	ErrRequestRequired = errors.New("request is required")
	// ErrAsyncHandlerInSyncOrchestrator rejects async handlers where nothing can await them.
	ErrAsyncHandlerInSyncOrchestrator = errors.New("async tool handler registered with a synchronous orchestrator")
	// ErrSequenceConsumed is yielded when a turn sequence is ranged over twice.
	ErrSequenceConsumed = errors.New("turn sequence already consumed")
	// ErrMaxIterationsExceeded matches every *MaxIterationsExceededError.
	ErrMaxIterationsExceeded = errors.New("max iterations exceeded")

	// ErrProtocolViolation is re-exported so callers need not import the stream package.
	ErrProtocolViolation = stream.ErrProtocolViolation
)

// MaxIterationsExceededError is returned when the model still requested
// tools after Limit model calls.
type MaxIterationsExceededError struct {
	Limit int
}

func (e *MaxIterationsExceededError) Error() string {
	return fmt.Sprintf("%s: limit %d", ErrMaxIterationsExceeded, e.Limit)
}

func (e *MaxIterationsExceededError) Is(target error) bool {
	return target == ErrMaxIterationsExceeded
}

// ToolExecutionError wraps a handler failure or panic. It never reaches the
// caller of Run; its text becomes an error tool_result.
type ToolExecutionError struct {
	ToolName  string
	ToolUseID string
	Err       error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.ToolName, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// UnknownToolError reports a tool_use naming a tool with no registration.
type UnknownToolError struct {
	ToolName  string
	ToolUseID string
}

func (e *UnknownToolError) Error() string {
	return "no handler registered for " + e.ToolName
}
