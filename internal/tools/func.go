package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"toolrunner/internal/llm/core"
)

// NewFunc builds a synchronous registration whose input schema is reflected from T.
func NewFunc[T any](name, description string, fn func(ctx context.Context, input T) (Result, error)) (Registration, error) {
	spec, err := core.NewToolSpecFromStruct(name, description, new(T))
	if err != nil {
		return Registration{}, fmt.Errorf("reflect %s input schema: %w", name, err)
	}
	return Registration{
		Name:        name,
		Description: description,
		InputSchema: spec.Schema,
		Handler:     typedHandler(name, fn),
	}, nil
}

// NewAsyncFunc is NewFunc for handlers that should run on their own goroutine.
func NewAsyncFunc[T any](name, description string, fn func(ctx context.Context, input T) (Result, error)) (Registration, error) {
	reg, err := NewFunc(name, description, fn)
	if err != nil {
		return Registration{}, err
	}
	handler := reg.Handler
	reg.Handler = nil
	reg.AsyncHandler = func(ctx context.Context, input json.RawMessage) *Future {
		return Go(ctx, func(ctx context.Context) (Result, error) {
			return handler(ctx, input)
		})
	}
	return reg, nil
}

func typedHandler[T any](name string, fn func(ctx context.Context, input T) (Result, error)) Handler {
	return func(ctx context.Context, raw json.RawMessage) (Result, error) {
		var input T
		if len(bytes.TrimSpace(raw)) == 0 {
			raw = json.RawMessage("{}")
		}
		if err := json.Unmarshal(raw, &input); err != nil {
			return Result{}, fmt.Errorf("decode %s params: %w", name, err)
		}
		return fn(ctx, input)
	}
}
