// ABOUTME: Tool contract, descriptors and parameter declarations for capability handlers.
// ABOUTME: Descriptors render to the JSON Schema advertised over tools/list.

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ParamType is the JSON type of a tool parameter.
type ParamType string

// Supported parameter types.
const (
	TypeString  ParamType = "string"
	TypeBoolean ParamType = "boolean"
	TypeInteger ParamType = "integer"
	TypeObject  ParamType = "object"
)

// Param declares one named argument of a tool.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Enum        []string
	Required    bool
}

// Descriptor is the registry's view of a tool.
type Descriptor struct {
	Name        string
	Description string
	Params      []Param

	// Timeout is the hard limit the handler applies to itself. Zero means
	// the handler has no deadline of its own.
	Timeout time.Duration
}

// Tool is a capability handler.
type Tool interface {
	Descriptor() Descriptor
	Invoke(ctx context.Context, args json.RawMessage) (any, error)
}

// InputSchema renders the descriptor's params as a JSON Schema object.
func (d Descriptor) InputSchema() json.RawMessage {
	properties := make(map[string]any, len(d.Params))
	required := make([]string, 0, len(d.Params))

	for _, p := range d.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	// Marshal of maps of strings cannot fail.
	raw, _ := json.Marshal(schema)
	return raw
}

// HasTimeout reports whether the handler bounds its own execution time.
func (d Descriptor) HasTimeout() bool {
	return d.Timeout > 0
}

// DecodeArgs decodes validated tool arguments into a handler's typed struct.
// Empty or null arguments decode into the zero value.
func DecodeArgs[T any](raw json.RawMessage) (T, error) {
	var args T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return args, nil
	}
	if err := json.Unmarshal(trimmed, &args); err != nil {
		return args, &ArgumentError{Err: fmt.Errorf("decoding arguments: %w", err)}
	}
	return args, nil
}
