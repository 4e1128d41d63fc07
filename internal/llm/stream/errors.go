package stream

import (
	"errors"
	"fmt"

	"toolrunner/internal/llm/core"
)

var (
	// ErrProtocolViolation matches every *ProtocolViolationError.
	ErrProtocolViolation = errors.New("stream protocol violation")
	// ErrMalformedToolInput matches every *MalformedToolInputError.
	ErrMalformedToolInput = errors.New("malformed tool input")
)

// ProtocolViolationError reports an event that breaks the message event
// ordering. The message cannot be reconstructed once one is returned.
type ProtocolViolationError struct {
	Event  core.EventType
	Index  int
	Reason string
}

func (e *ProtocolViolationError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("%s: %s", ErrProtocolViolation, e.Reason)
	}
	return fmt.Sprintf("%s: %s (index %d): %s", ErrProtocolViolation, e.Event, e.Index, e.Reason)
}

func (e *ProtocolViolationError) Is(target error) bool {
	return target == ErrProtocolViolation
}

// MalformedToolInputError is attached to a tool request whose streamed input
// was not a JSON object. It is recorded on the block, never returned by Add.
type MalformedToolInputError struct {
	ToolUseID string
	ToolName  string
	Raw       string
	Err       error
}

func (e *MalformedToolInputError) Error() string {
	return fmt.Sprintf("malformed input for tool %q (%s): %v", e.ToolName, e.ToolUseID, e.Err)
}

func (e *MalformedToolInputError) Unwrap() error {
	return e.Err
}

func (e *MalformedToolInputError) Is(target error) bool {
	return target == ErrMalformedToolInput
}

func violation(ev core.StreamEvent, format string, args ...any) *ProtocolViolationError {
	return &ProtocolViolationError{
		Event:  ev.Type,
		Index:  ev.Index,
		Reason: fmt.Sprintf(format, args...),
	}
}
