package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"toolrunner/internal/llm/core"
)

var (
	ErrToolNameRequired    = errors.New("tool name is required")
	ErrHandlerRequired     = errors.New("tool handler is required")
	ErrConflictingHandlers = errors.New("tool cannot have both a handler and an async handler")
	ErrInvalidSchema       = errors.New("tool input schema is invalid")
)

// Result is what a handler returns to the model. Content is sent as a text
// block ahead of Blocks, which carry anything richer (images, documents).
type Result struct {
	Content string
	Blocks  []core.ContentBlock
}

// Handler runs a tool to completion on the caller's goroutine.
type Handler func(ctx context.Context, input json.RawMessage) (Result, error)

// AsyncHandler starts a tool and returns immediately; the caller awaits the Future.
type AsyncHandler func(ctx context.Context, input json.RawMessage) *Future

// Registration binds a tool name to its schema and exactly one handler kind.
type Registration struct {
	Name         string
	Description  string
	InputSchema  json.RawMessage
	Handler      Handler
	AsyncHandler AsyncHandler
}

// IsAsync reports whether the registration uses an AsyncHandler.
func (r Registration) IsAsync() bool {
	return r.AsyncHandler != nil
}

// Spec returns the API definition advertised to the model.
func (r Registration) Spec() core.ToolSpec {
	return core.ToolSpec{
		Name:        r.Name,
		Description: r.Description,
		Schema:      append(json.RawMessage(nil), r.InputSchema...),
	}
}

func (r Registration) validate() (Registration, error) {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return r, ErrToolNameRequired
	}
	if r.Handler == nil && r.AsyncHandler == nil {
		return r, fmt.Errorf("%w: %s", ErrHandlerRequired, r.Name)
	}
	if r.Handler != nil && r.AsyncHandler != nil {
		return r, fmt.Errorf("%w: %s", ErrConflictingHandlers, r.Name)
	}
	schema, err := core.ParseToolSchema(r.InputSchema)
	if err != nil {
		return r, fmt.Errorf("%w: %s: %v", ErrInvalidSchema, r.Name, err)
	}
	normalized, err := schema.Raw()
	if err != nil {
		return r, fmt.Errorf("%w: %s: %v", ErrInvalidSchema, r.Name, err)
	}
	r.InputSchema = normalized
	return r, nil
}

// Registry maps tool names to registrations. It is safe for concurrent use;
// each orchestrator is handed its own instance.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Registration
}

// NewRegistry constructs an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Registration{}}
}

// Register adds reg, replacing any registration with the same name.
func (r *Registry) Register(reg Registration) error {
	valid, err := reg.validate()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[valid.Name] = valid
	return nil
}

// Lookup returns the registration for name.
func (r *Registry) Lookup(name string) (Registration, bool) {
	if r == nil {
		return Registration{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	return reg, ok
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ToAPIDefinitions returns every tool's definition sorted by name.
func (r *Registry) ToAPIDefinitions() []core.ToolSpec {
	names := r.Names()
	specs := make([]core.ToolSpec, 0, len(names))
	for _, name := range names {
		reg, ok := r.Lookup(name)
		if !ok {
			continue
		}
		specs = append(specs, reg.Spec())
	}
	return specs
}

// HasAsync reports whether any registration uses an AsyncHandler.
func (r *Registry) HasAsync() bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, reg := range r.tools {
		if reg.IsAsync() {
			return true
		}
	}
	return false
}
