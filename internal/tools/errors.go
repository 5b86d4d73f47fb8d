// ABOUTME: Error types returned by the tool registry.
// ABOUTME: Separates unknown tools, bad arguments and handler failures.

package tools

import (
	"errors"
	"fmt"
)

// ErrToolNotFound indicates the requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// ErrToolCollision indicates a tool with the same name is already registered.
var ErrToolCollision = errors.New("tool name collision")

// ArgumentError reports arguments that do not satisfy a tool's schema.
type ArgumentError struct {
	Tool string
	Err  error
}

func (e *ArgumentError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("invalid arguments: %v", e.Err)
	}
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// HandlerError wraps any failure raised inside a tool, including panics.
// Its message is the handler's own message so callers can surface it as-is.
type HandlerError struct {
	Tool string
	Err  error
}

func (e *HandlerError) Error() string { return e.Err.Error() }

func (e *HandlerError) Unwrap() error { return e.Err }
