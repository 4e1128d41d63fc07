package core

import "context"

// EventType identifies stream event variants.
type EventType string

const (
	EventMessageStart      EventType = "message_start"
	EventContentBlockStart EventType = "content_block_start"
	EventContentBlockDelta EventType = "content_block_delta"
	EventContentBlockStop  EventType = "content_block_stop"
	EventMessageDelta      EventType = "message_delta"
	EventMessageStop       EventType = "message_stop"

	// EventError carries a transport failure. It is terminal and never part
	// of the message protocol itself.
	EventError EventType = "error"
)

// DeltaType identifies the kind of incremental payload in a content_block_delta.
type DeltaType string

const (
	DeltaText      DeltaType = "text_delta"
	DeltaThinking  DeltaType = "thinking_delta"
	DeltaSignature DeltaType = "signature_delta"
	DeltaInputJSON DeltaType = "input_json_delta"
)

// Delta is one incremental fragment for the block at StreamEvent.Index.
type Delta struct {
	Type        DeltaType
	Text        string
	Thinking    string
	Signature   string
	PartialJSON string
}

// StreamEvent is one ordered event of an incremental model response.
type StreamEvent struct {
	Type EventType
	// Index is the content block position for block-scoped events.
	Index int
	// Message carries id and role on message_start.
	Message *Message
	// Block is the initial block state on content_block_start.
	Block ContentBlock
	Delta Delta
	// StopReason is set on message_delta.
	StopReason StopReason
	Usage      *Usage
	Err        error
}

// SendEvent forwards an event unless the context has already been canceled.
func SendEvent(ctx context.Context, events chan<- StreamEvent, event StreamEvent) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case events <- event:
		return nil
	}
}

// SendTerminalEvent delivers the last event of a stream. It waits for the
// consumer to make room, giving up only once ctx is done so a consumer that
// has stopped reading cannot strand the producer.
func SendTerminalEvent(ctx context.Context, events chan<- StreamEvent, event StreamEvent) {
	select {
	case events <- event:
		return
	default:
	}
	select {
	case events <- event:
	case <-ctx.Done():
	}
}
