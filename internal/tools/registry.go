// ABOUTME: Thread-safe registry of capability handlers keyed by tool name.
// ABOUTME: Validates arguments against each tool's schema and contains handler failures.

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

type entry struct {
	tool   Tool
	desc   Descriptor
	schema *jsonschema.Schema
}

// Registry maps tool names to handlers. It is filled at startup and read
// concurrently afterwards; Register stays safe to call at any time.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	tools  map[string]*entry
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*entry),
		logger: logger.With("component", "tools"),
	}
}

// Register adds a tool. Returns ErrToolCollision if the name is taken.
func (r *Registry) Register(t Tool) error {
	desc := t.Descriptor()
	if desc.Name == "" {
		return errors.New("tool name is required")
	}

	schema, err := jsonschema.NewCompiler().Compile(desc.InputSchema())
	if err != nil {
		return fmt.Errorf("compiling schema for %s: %w", desc.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolCollision, desc.Name)
	}
	r.tools[desc.Name] = &entry{tool: t, desc: desc, schema: schema}
	r.order = append(r.order, desc.Name)

	r.logger.Info("tool registered",
		"tool", desc.Name,
		"timeout", desc.Timeout,
		"total_tools", len(r.order),
	)
	return nil
}

// MustRegister registers every tool and panics on the first failure.
// Intended for startup wiring of the fixed capability set.
func (r *Registry) MustRegister(ts ...Tool) {
	for _, t := range ts {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// List returns descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].desc)
	}
	return out
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Invoke validates args and runs the named tool. Handler errors and panics
// come back as *HandlerError; they never escape as panics.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (result any, err error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	args, err = normalizeArgs(args)
	if err != nil {
		return nil, &ArgumentError{Tool: name, Err: err}
	}
	if err := validate(e.schema, args); err != nil {
		return nil, &ArgumentError{Tool: name, Err: err}
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", p)
			result = nil
			err = &HandlerError{Tool: name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	result, err = e.tool.Invoke(ctx, args)
	if err != nil {
		var argErr *ArgumentError
		if errors.As(err, &argErr) {
			if argErr.Tool == "" {
				argErr.Tool = name
			}
			return nil, argErr
		}
		r.logger.Warn("tool returned error", "tool", name, "error", err)
		return nil, &HandlerError{Tool: name, Err: err}
	}
	return result, nil
}

// normalizeArgs maps missing or null arguments to an empty object.
func normalizeArgs(args json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}"), nil
	}
	if trimmed[0] != '{' {
		return nil, errors.New("arguments must be a JSON object")
	}
	return trimmed, nil
}

func validate(schema *jsonschema.Schema, args json.RawMessage) error {
	var instance map[string]any
	if err := json.Unmarshal(args, &instance); err != nil {
		return fmt.Errorf("decoding arguments: %w", err)
	}
	result := schema.Validate(instance)
	if !result.IsValid() {
		return fmt.Errorf("%s", result.Error())
	}
	return nil
}
