package agent

import (
	"context"

	"golang.org/x/sync/errgroup"

	"toolrunner/internal/llm/core"
)

// AsyncOrchestrator runs each loop as a background Task. Handlers may be
// async; their futures are awaited one at a time in document order.
type AsyncOrchestrator struct {
	engine *engine
}

// NewAsync constructs an async orchestrator over MessageService.Create.
func NewAsync(cfg Config) (*AsyncOrchestrator, error) {
	e, err := newEngine(cfg, modeCreate, true)
	if err != nil {
		return nil, err
	}
	return &AsyncOrchestrator{engine: e}, nil
}

// NewAsyncStreaming constructs an async orchestrator over MessageService.Stream.
func NewAsyncStreaming(cfg Config) (*AsyncOrchestrator, error) {
	e, err := newEngine(cfg, modeStream, true)
	if err != nil {
		return nil, err
	}
	return &AsyncOrchestrator{engine: e}, nil
}

// Start begins a run and returns immediately.
func (o *AsyncOrchestrator) Start(ctx context.Context, req *core.Request) *Task {
	runCtx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer cancel()
		t.result, t.err = o.engine.run(runCtx, req)
	}()
	return t
}

// Run starts a task and waits for it.
func (o *AsyncOrchestrator) Run(ctx context.Context, req *core.Request) (*core.Message, error) {
	return o.Start(ctx, req).Wait()
}

// RunAll runs every request as its own loop, at most limit at once (limit <= 0
// means unbounded). Messages line up with reqs. The first fatal error cancels
// the runs still in flight and is returned.
func (o *AsyncOrchestrator) RunAll(ctx context.Context, limit int, reqs ...*core.Request) ([]*core.Message, error) {
	group, groupCtx := errgroup.WithContext(ctx)
	if limit > 0 {
		group.SetLimit(limit)
	}

	out := make([]*core.Message, len(reqs))
	for i, req := range reqs {
		group.Go(func() error {
			result, err := o.engine.run(groupCtx, req)
			if err != nil {
				return err
			}
			out[i] = result.Message
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Task is one in-flight run.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	result *RunResult
	err    error
}

// Done is closed when the run has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel stops the run at the next iteration boundary and cancels the
// context handed to in-flight handlers.
func (t *Task) Cancel() {
	t.cancel()
}

// Wait blocks until the run finishes and returns its final message.
func (t *Task) Wait() (*core.Message, error) {
	<-t.done
	if t.err != nil {
		return nil, t.err
	}
	return t.result.Message, nil
}

// Result blocks until the run finishes and returns its details.
func (t *Task) Result() (*RunResult, error) {
	<-t.done
	return t.result, t.err
}
