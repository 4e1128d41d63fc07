package agent

import (
	"context"
	"iter"
	"sync/atomic"

	"toolrunner/internal/llm/core"
)

// Side says where a tool request is resolved.
type Side string

const (
	// SideClient requests are executed by a local handler.
	SideClient Side = "client"
	// SideServer requests were already resolved by the remote service.
	SideServer Side = "server"
)

// ToolInvocation is one tool request from an assistant message.
type ToolInvocation struct {
	Block core.ContentBlock
	Side  Side
}

func (i ToolInvocation) ID() string {
	switch b := i.Block.(type) {
	case core.ToolUseBlock:
		return b.ID
	case core.ServerToolUseBlock:
		return b.ID
	}
	return ""
}

func (i ToolInvocation) Name() string {
	switch b := i.Block.(type) {
	case core.ToolUseBlock:
		return b.Name
	case core.ServerToolUseBlock:
		return b.Name
	}
	return ""
}

// Invocations lists the tool requests in msg in document order.
func Invocations(msg *core.Message) []ToolInvocation {
	if msg == nil {
		return nil
	}
	var out []ToolInvocation
	for _, block := range msg.Content {
		switch block.(type) {
		case core.ToolUseBlock:
			out = append(out, ToolInvocation{Block: block, Side: SideClient})
		case core.ServerToolUseBlock:
			out = append(out, ToolInvocation{Block: block, Side: SideServer})
		}
	}
	return out
}

func hasClientToolUse(msg *core.Message) bool {
	for _, inv := range Invocations(msg) {
		if inv.Side == SideClient {
			return true
		}
	}
	return false
}

// DualModeConfig configures a DualModeOrchestrator.
type DualModeConfig struct {
	Config
	// Stream selects MessageService.Stream instead of Create.
	Stream bool
}

// DualModeOrchestrator exposes every assistant turn as it arrives.
type DualModeOrchestrator struct {
	engine *engine
}

// NewDualMode constructs a dual-mode orchestrator. Async handlers are rejected.
func NewDualMode(cfg DualModeConfig) (*DualModeOrchestrator, error) {
	mode := modeCreate
	if cfg.Stream {
		mode = modeStream
	}
	e, err := newEngine(cfg.Config, mode, false)
	if err != nil {
		return nil, err
	}
	return &DualModeOrchestrator{engine: e}, nil
}

// Turns returns the run as a lazy sequence of assistant messages. Nothing is
// requested until iteration starts, and breaking out of the loop stops the
// run before the next model call. A fatal error is yielded last with a nil
// message. The sequence can be ranged over once; later attempts yield
// ErrSequenceConsumed.
func (o *DualModeOrchestrator) Turns(ctx context.Context, req *core.Request) iter.Seq2[*core.Message, error] {
	var consumed atomic.Bool
	return func(yield func(*core.Message, error) bool) {
		if consumed.Swap(true) {
			yield(nil, ErrSequenceConsumed)
			return
		}
		_, err := o.engine.iterate(ctx, req, func(msg *core.Message) bool {
			return yield(msg, nil)
		})
		if err != nil {
			yield(nil, err)
		}
	}
}

// Run drains Turns and returns the final assistant message.
func (o *DualModeOrchestrator) Run(ctx context.Context, req *core.Request) (*core.Message, error) {
	var last *core.Message
	for msg, err := range o.Turns(ctx, req) {
		if err != nil {
			return nil, err
		}
		last = msg
	}
	return last, nil
}

// Invocations is the package-level Invocations, offered for callers holding
// only the orchestrator.
func (o *DualModeOrchestrator) Invocations(msg *core.Message) []ToolInvocation {
	return Invocations(msg)
}
