package tools

import (
	"context"
	"errors"
	"fmt"
)

// ErrHandlerPanic wraps a panic raised inside a goroutine started by Go.
var ErrHandlerPanic = errors.New("tool handler panicked")

// Future is the pending result of an async tool invocation.
type Future struct {
	done   chan struct{}
	result Result
	err    error
}

// Go runs fn on its own goroutine. A panic in fn resolves the future with ErrHandlerPanic.
func Go(ctx context.Context, fn func(ctx context.Context) (Result, error)) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
			}
		}()
		f.result, f.err = fn(ctx)
	}()
	return f
}

// Resolved returns a future that is already complete.
func Resolved(result Result, err error) *Future {
	f := &Future{done: make(chan struct{}), result: result, err: err}
	close(f.done)
	return f
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future resolves or ctx is canceled.
func (f *Future) Await(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
