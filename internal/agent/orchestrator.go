package agent

import (
	"context"

	"toolrunner/internal/llm/core"
)

// Orchestrator runs the loop on whole responses from MessageService.Create.
// It blocks the calling goroutine and rejects async handlers.
type Orchestrator struct {
	engine *engine
}

// New constructs a synchronous orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	e, err := newEngine(cfg, modeCreate, false)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{engine: e}, nil
}

// Run loops until the model stops requesting client tools and returns that
// final assistant message.
func (o *Orchestrator) Run(ctx context.Context, req *core.Request) (*core.Message, error) {
	return finalMessage(o.engine.run(ctx, req))
}

// RunDetailed is Run returning the whole conversation and accumulated usage.
func (o *Orchestrator) RunDetailed(ctx context.Context, req *core.Request) (*RunResult, error) {
	return o.engine.run(ctx, req)
}

// StreamingOrchestrator runs the loop over MessageService.Stream, folding each
// call through a fresh aggregator.
type StreamingOrchestrator struct {
	engine *engine
}

// NewStreaming constructs a synchronous streaming orchestrator. cfg.Observer,
// when set, receives every event before it is aggregated.
func NewStreaming(cfg Config) (*StreamingOrchestrator, error) {
	e, err := newEngine(cfg, modeStream, false)
	if err != nil {
		return nil, err
	}
	return &StreamingOrchestrator{engine: e}, nil
}

func (o *StreamingOrchestrator) Run(ctx context.Context, req *core.Request) (*core.Message, error) {
	return finalMessage(o.engine.run(ctx, req))
}

func (o *StreamingOrchestrator) RunDetailed(ctx context.Context, req *core.Request) (*RunResult, error) {
	return o.engine.run(ctx, req)
}

func finalMessage(result *RunResult, err error) (*core.Message, error) {
	if err != nil {
		return nil, err
	}
	return result.Message, nil
}
