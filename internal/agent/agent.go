// Package agent implements the model/tool orchestration loop in its
// synchronous, streaming, async and dual-mode variants.
package agent

import (
	"log/slog"
	"maps"
	"slices"

	"toolrunner/internal/llm/core"
	"toolrunner/internal/logging"
	"toolrunner/internal/metrics"
	"toolrunner/internal/tools"
)

const defaultMaxIterations = 10

// Config is shared by every orchestrator constructor.
type Config struct {
	Service  core.MessageService
	Registry *tools.Registry
	// MaxIterations bounds model calls per run. Zero means 10.
	MaxIterations int
	// Observer sees every stream event in order. Streaming variants only.
	Observer func(core.StreamEvent)
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
}

// RunResult describes a finished run. It is populated as far as the run got
// even when the run fails.
type RunResult struct {
	RunID string
	// Message is the terminal assistant message; nil when the run failed.
	Message *core.Message
	// Messages is the full conversation, starting with the request messages.
	Messages   []core.Message
	Usage      core.Usage
	Iterations int
	// States lists every state the run passed through, in order.
	States []State
}

// State returns the last state of the run.
func (r *RunResult) State() State {
	if r == nil || len(r.States) == 0 {
		return ""
	}
	return r.States[len(r.States)-1]
}

type callMode string

const (
	modeCreate callMode = "create"
	modeStream callMode = "stream"
)

func newEngine(cfg Config, mode callMode, async bool) (*engine, error) {
	if cfg.Service == nil {
		return nil, ErrServiceRequired
	}

	registry := cfg.Registry
	if registry == nil {
		registry = tools.NewRegistry()
	}
	if !async && registry.HasAsync() {
		return nil, ErrAsyncHandlerInSyncOrchestrator
	}

	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	e := &engine{
		service:       cfg.Service,
		registry:      registry,
		maxIterations: maxIterations,
		logger:        logger,
		metrics:       cfg.Metrics,
		mode:          mode,
		async:         async,
	}
	if mode == modeStream {
		e.observer = cfg.Observer
	}
	return e, nil
}

// prepareRequest clones req and advertises the registry tools. A registry
// definition replaces a request tool with the same name.
func (e *engine) prepareRequest(req *core.Request) *core.Request {
	cloned := cloneRequest(req)

	defs := e.registry.ToAPIDefinitions()
	registered := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		registered[def.Name] = struct{}{}
	}

	merged := make([]core.ToolSpec, 0, len(cloned.Tools)+len(defs))
	for _, tool := range cloned.Tools {
		if _, ok := registered[tool.Name]; ok {
			continue
		}
		merged = append(merged, tool)
	}
	merged = append(merged, defs...)
	if len(merged) == 0 {
		merged = nil
	}
	cloned.Tools = merged
	return cloned
}

func cloneRequest(req *core.Request) *core.Request {
	cloned := *req
	cloned.Messages = slices.Clone(req.Messages)
	cloned.Tools = slices.Clone(req.Tools)
	cloned.ServerTools = slices.Clone(req.ServerTools)
	cloned.Metadata = maps.Clone(req.Metadata)
	if req.Temperature != nil {
		value := *req.Temperature
		cloned.Temperature = &value
	}
	return &cloned
}
