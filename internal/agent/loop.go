package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"toolrunner/internal/llm/core"
	"toolrunner/internal/llm/stream"
	"toolrunner/internal/metrics"
	"toolrunner/internal/tools"
)

// engine is the loop shared by every orchestrator. It holds no per-run state
// and is safe for concurrent runs.
type engine struct {
	service       core.MessageService
	registry      *tools.Registry
	maxIterations int
	observer      func(core.StreamEvent)
	logger        *slog.Logger
	metrics       *metrics.Recorder
	mode          callMode
	async         bool
}

// runState is owned by exactly one run.
type runState struct {
	req    *core.Request
	result *RunResult
	logger *slog.Logger
}

func (r *runState) transition(next State) {
	r.result.States = append(r.result.States, next)
}

func (e *engine) run(ctx context.Context, req *core.Request) (*RunResult, error) {
	return e.iterate(ctx, req, func(*core.Message) bool { return true })
}

// iterate runs the loop, handing every assistant message to yield before its
// tool requests are dispatched. When yield returns false the run ends without
// further model calls and without error.
func (e *engine) iterate(ctx context.Context, req *core.Request, yield func(*core.Message) bool) (*RunResult, error) {
	if req == nil {
		return nil, ErrRequestRequired
	}
	if !e.async && e.registry.HasAsync() {
		return nil, ErrAsyncHandlerInSyncOrchestrator
	}

	r := e.begin(req)
	for i := 1; i <= e.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return e.fail(r, err)
		}
		r.result.Iterations = i

		msg, err := e.call(ctx, r.req)
		if err != nil {
			return e.fail(r, err)
		}
		r.result.Usage = r.result.Usage.Add(msg.Usage)
		r.req.Messages = append(r.req.Messages, *msg)
		r.logger.Debug("model turn",
			"iteration", i,
			"stop_reason", msg.StopReason,
			"blocks", len(msg.Content),
		)

		if !yield(msg) {
			return e.finish(r, msg, "consumer stopped")
		}
		if !hasClientToolUse(msg) {
			return e.finish(r, msg, "no client tool requests")
		}

		r.transition(StateDispatchingTools)
		results, err := e.dispatch(ctx, r, msg)
		if err != nil {
			return e.fail(r, err)
		}
		r.req.Messages = append(r.req.Messages, results)
		r.transition(StateAwaitingModel)
	}
	return e.fail(r, &MaxIterationsExceededError{Limit: e.maxIterations})
}

func (e *engine) begin(req *core.Request) *runState {
	id := uuid.NewString()
	r := &runState{
		req: e.prepareRequest(req),
		result: &RunResult{
			RunID:  id,
			States: []State{StateAwaitingModel},
		},
		logger: e.logger.With("run_id", id, "mode", string(e.mode)),
	}
	r.logger.Debug("run started",
		"messages", len(r.req.Messages),
		"tools", len(r.req.Tools),
		"max_iterations", e.maxIterations,
	)
	return r
}

func (e *engine) finish(r *runState, msg *core.Message, reason string) (*RunResult, error) {
	r.transition(StateTerminated)
	r.result.Message = msg
	r.result.Messages = r.req.Messages
	r.logger.Debug("run finished",
		"state", r.result.State(),
		"reason", reason,
		"iterations", r.result.Iterations,
		"total_tokens", r.result.Usage.TotalTokens,
	)
	e.metrics.RunFinished(string(StateTerminated), r.result.Iterations)
	return r.result, nil
}

func (e *engine) fail(r *runState, err error) (*RunResult, error) {
	r.transition(StateFailed)
	r.result.Messages = r.req.Messages
	r.logger.Warn("run failed",
		"state", r.result.State(),
		"iterations", r.result.Iterations,
		"error", err,
	)
	e.metrics.RunFinished(string(StateFailed), r.result.Iterations)
	return r.result, err
}

// call makes one model request. Errors from the service are returned unchanged.
func (e *engine) call(ctx context.Context, req *core.Request) (*core.Message, error) {
	started := time.Now()
	var (
		msg *core.Message
		err error
	)
	if e.mode == modeStream {
		msg, err = e.stream(ctx, req)
	} else {
		msg, err = e.service.Create(ctx, req)
	}
	if err == nil && msg == nil {
		err = errors.New("message service returned no message")
	}
	e.metrics.ModelCall(string(e.mode), time.Since(started), err)
	return msg, err
}

// stream folds one Stream call through a fresh aggregator.
func (e *engine) stream(ctx context.Context, req *core.Request) (*core.Message, error) {
	events, err := e.service.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	agg := stream.NewAggregator()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return agg.Message()
			}
			if ev.Type == core.EventError {
				if ev.Err == nil {
					return nil, errors.New("message stream failed")
				}
				return nil, ev.Err
			}
			if e.observer != nil {
				e.observer(ev)
			}
			if err := agg.Add(ev); err != nil {
				return nil, err
			}
		}
	}
}
