// ABOUTME: Filesystem capability: read, write and list paths on the local machine.
// ABOUTME: Reads are capped at 50000 bytes and listings at 100 entries.

package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/2389/hivenode/internal/tools"
)

// Limits applied to filesystem results.
const (
	MaxReadBytes   = 50000
	MaxListEntries = 100
)

type filesystemArgs struct {
	Action  string  `json:"action"`
	Path    string  `json:"path"`
	Content *string `json:"content"`
}

// Filesystem reads, writes and lists paths.
type Filesystem struct{}

// NewFilesystem creates the filesystem handler.
func NewFilesystem() *Filesystem { return &Filesystem{} }

// Descriptor implements tools.Tool.
func (f *Filesystem) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:        "filesystem",
		Description: "Read/write/list filesystem",
		Params: []tools.Param{
			{Name: "action", Type: tools.TypeString, Enum: []string{"read", "write", "list"}, Required: true},
			{Name: "path", Type: tools.TypeString, Required: true},
			{Name: "content", Type: tools.TypeString, Description: "for write"},
		},
	}
}

// Invoke implements tools.Tool.
func (f *Filesystem) Invoke(_ context.Context, raw json.RawMessage) (any, error) {
	args, err := tools.DecodeArgs[filesystemArgs](raw)
	if err != nil {
		return nil, err
	}

	switch args.Action {
	case "read":
		return f.read(args.Path)
	case "write":
		if args.Content == nil {
			return nil, &tools.ArgumentError{Err: fmt.Errorf("content is required for write")}
		}
		if err := os.WriteFile(args.Path, []byte(*args.Content), 0o644); err != nil {
			return nil, err
		}
		return map[string]any{"status": "written", "path": args.Path}, nil
	case "list":
		return f.list(args.Path)
	default:
		return nil, fmt.Errorf("unknown action: %s", args.Action)
	}
}

func (f *Filesystem) read(path string) (any, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, MaxReadBytes))
	if err != nil {
		return nil, err
	}
	return map[string]any{"content": string(data)}, nil
}

func (f *Filesystem) list(path string) (any, error) {
	dir, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer dir.Close()

	names, err := dir.Readdirnames(MaxListEntries)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return map[string]any{"items": names}, nil
}
