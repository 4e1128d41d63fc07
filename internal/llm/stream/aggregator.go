// Package stream reconstructs complete messages from ordered stream events.
package stream

import (
	"encoding/json"
	"strconv"
	"strings"

	"toolrunner/internal/llm/core"
)

type phase int

const (
	phaseIdle phase = iota
	phaseMessage
	phaseBlock
	phaseDelta
	phaseDone
)

// Aggregator folds one message's events into a core.Message. It accepts
//
//	message_start (content_block_start content_block_delta* content_block_stop)* message_delta message_stop
//
// and rejects anything else. An Aggregator is single-use and not safe for
// concurrent use.
type Aggregator struct {
	phase  phase
	msg    core.Message
	blocks []*blockBuilder
	open   int
	err    error
	result *core.Message
}

type blockBuilder struct {
	initial   core.ContentBlock
	text      strings.Builder
	thinking  strings.Builder
	signature strings.Builder
	input     strings.Builder
	hasInput  bool
}

// NewAggregator returns an aggregator expecting message_start.
func NewAggregator() *Aggregator {
	return &Aggregator{open: -1}
}

// Add applies one event. After the first violation every call returns that
// same violation.
func (a *Aggregator) Add(ev core.StreamEvent) error {
	if a.err != nil {
		return a.err
	}
	if err := a.apply(ev); err != nil {
		a.err = err
		return err
	}
	return nil
}

// Done reports whether message_stop has been applied.
func (a *Aggregator) Done() bool {
	return a.phase == phaseDone
}

// Message returns the reconstructed message. After message_stop it returns
// the same pointer on every call.
func (a *Aggregator) Message() (*core.Message, error) {
	if a.result != nil {
		return a.result, nil
	}
	if a.err != nil {
		return nil, a.err
	}
	return nil, &ProtocolViolationError{Reason: "message requested before message_stop"}
}

func (a *Aggregator) apply(ev core.StreamEvent) error {
	if a.phase == phaseDone {
		return violation(ev, "event after message_stop")
	}
	if a.phase == phaseIdle && ev.Type != core.EventMessageStart {
		return violation(ev, "event before message_start")
	}

	switch ev.Type {
	case core.EventMessageStart:
		if a.phase != phaseIdle {
			return violation(ev, "duplicate message_start")
		}
		a.msg.Role = core.RoleAssistant
		if ev.Message != nil {
			a.msg.ID = ev.Message.ID
			if ev.Message.Role != "" {
				a.msg.Role = ev.Message.Role
			}
		}
		if ev.Usage != nil {
			a.msg.Usage = *ev.Usage
		}
		a.phase = phaseMessage
		return nil

	case core.EventContentBlockStart:
		if a.phase != phaseMessage {
			return violation(ev, "content_block_start while %s", a.describe())
		}
		if ev.Index != len(a.blocks) {
			return violation(ev, "expected block index %d", len(a.blocks))
		}
		if ev.Block == nil {
			return violation(ev, "content_block_start without a block")
		}
		a.blocks = append(a.blocks, &blockBuilder{initial: ev.Block})
		a.open = ev.Index
		a.phase = phaseBlock
		return nil

	case core.EventContentBlockDelta:
		if a.phase != phaseBlock {
			return violation(ev, "content_block_delta while %s", a.describe())
		}
		if ev.Index != a.open {
			return violation(ev, "delta for block %d while block %d is open", ev.Index, a.open)
		}
		return a.blocks[a.open].applyDelta(ev)

	case core.EventContentBlockStop:
		if a.phase != phaseBlock {
			return violation(ev, "content_block_stop while %s", a.describe())
		}
		if ev.Index != a.open {
			return violation(ev, "stop for block %d while block %d is open", ev.Index, a.open)
		}
		a.open = -1
		a.phase = phaseMessage
		return nil

	case core.EventMessageDelta:
		if a.phase != phaseMessage {
			return violation(ev, "message_delta while %s", a.describe())
		}
		a.msg.StopReason = ev.StopReason
		if ev.Usage != nil {
			a.msg.Usage = *ev.Usage
		}
		a.phase = phaseDelta
		return nil

	case core.EventMessageStop:
		if a.phase != phaseDelta {
			return violation(ev, "message_stop while %s", a.describe())
		}
		a.finish()
		a.phase = phaseDone
		return nil

	default:
		return violation(ev, "unexpected event type")
	}
}

func (a *Aggregator) describe() string {
	switch a.phase {
	case phaseBlock:
		return "block " + strconv.Itoa(a.open) + " is open"
	case phaseDelta:
		return "message_delta already received"
	case phaseDone:
		return "message is complete"
	default:
		return "no block is open"
	}
}

func (a *Aggregator) finish() {
	msg := a.msg
	msg.Content = make([]core.ContentBlock, 0, len(a.blocks))
	for _, b := range a.blocks {
		msg.Content = append(msg.Content, b.build())
	}
	a.result = &msg
}

func (b *blockBuilder) applyDelta(ev core.StreamEvent) error {
	d := ev.Delta
	switch d.Type {
	case core.DeltaText:
		if _, ok := b.initial.(core.TextBlock); !ok {
			return violation(ev, "text_delta for %s block", b.initial.BlockType())
		}
		b.text.WriteString(d.Text)
	case core.DeltaThinking:
		if _, ok := b.initial.(core.ThinkingBlock); !ok {
			return violation(ev, "thinking_delta for %s block", b.initial.BlockType())
		}
		b.thinking.WriteString(d.Thinking)
	case core.DeltaSignature:
		if _, ok := b.initial.(core.ThinkingBlock); !ok {
			return violation(ev, "signature_delta for %s block", b.initial.BlockType())
		}
		b.signature.WriteString(d.Signature)
	case core.DeltaInputJSON:
		switch b.initial.(type) {
		case core.ToolUseBlock, core.ServerToolUseBlock:
		case core.UnknownBlock:
			// Newer tool-call kinds stream input too; the block is kept as sent.
			return nil
		default:
			return violation(ev, "input_json_delta for %s block", b.initial.BlockType())
		}
		b.input.WriteString(d.PartialJSON)
		b.hasInput = true
	}
	// Delta kinds not listed above (citations) carry nothing we rebuild.
	return nil
}

func (b *blockBuilder) build() core.ContentBlock {
	switch block := b.initial.(type) {
	case core.TextBlock:
		block.Text += b.text.String()
		return block
	case core.ThinkingBlock:
		block.Thinking += b.thinking.String()
		block.Signature += b.signature.String()
		return block
	case core.ToolUseBlock:
		block.Input, block.InputError = b.parseInput(block.ID, block.Name, block.Input)
		return block
	case core.ServerToolUseBlock:
		block.Input, block.InputError = b.parseInput(block.ID, block.Name, block.Input)
		return block
	default:
		return block
	}
}

// parseInput prefers streamed fragments and falls back to the input carried
// by content_block_start.
func (b *blockBuilder) parseInput(id, name string, initial json.RawMessage) (json.RawMessage, error) {
	raw := string(initial)
	if b.hasInput {
		raw = b.input.String()
	}
	parsed, err := core.ParseToolInput(raw)
	if err != nil {
		return json.RawMessage("{}"), &MalformedToolInputError{
			ToolUseID: id,
			ToolName:  name,
			Raw:       raw,
			Err:       err,
		}
	}
	return parsed, nil
}
