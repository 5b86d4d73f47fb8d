// ABOUTME: Shell execution capability with a safe-mode deny list.
// ABOUTME: Commands run under sh -c with a 60 second limit and truncated output.

package builtins

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/2389/hivenode/internal/tools"
)

// Output limits for local_exec.
const (
	ExecTimeout    = 60 * time.Second
	MaxStdoutBytes = 10000
	MaxStderrBytes = 2000

	// execWaitDelay caps how long Run waits on orphaned children holding
	// the output pipes after the shell is killed.
	execWaitDelay = 500 * time.Millisecond
)

// blockedPatterns are refused while safe mode is on.
var blockedPatterns = []string{"rm -rf", "dd if=", "mkfs", "> /dev/", "chmod 777"}

// ErrCommandBlocked is returned when safe mode refuses a command.
var ErrCommandBlocked = errors.New("command blocked by safe_mode")

type execArgs struct {
	Command  string `json:"command"`
	SafeMode *bool  `json:"safe_mode"`
}

// LocalExec runs shell commands.
type LocalExec struct {
	shell   string
	timeout time.Duration
}

// NewLocalExec creates the shell handler.
func NewLocalExec() *LocalExec {
	return &LocalExec{shell: "sh", timeout: ExecTimeout}
}

// Descriptor implements tools.Tool.
func (e *LocalExec) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:        "local_exec",
		Description: "Execute local shell command",
		Params: []tools.Param{
			{Name: "command", Type: tools.TypeString, Required: true},
			{Name: "safe_mode", Type: tools.TypeBoolean, Description: "default true"},
		},
		Timeout: e.timeout,
	}
}

// Invoke implements tools.Tool.
func (e *LocalExec) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := tools.DecodeArgs[execArgs](raw)
	if err != nil {
		return nil, err
	}

	safe := true
	if args.SafeMode != nil {
		safe = *args.SafeMode
	}
	if safe && isBlocked(args.Command) {
		return nil, fmt.Errorf("%w: %s", ErrCommandBlocked, args.Command)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.shell, "-c", args.Command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = execWaitDelay

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("command timed out (%s)", e.timeout)
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, runErr
		}
		exitCode = exitErr.ExitCode()
	}

	return map[string]any{
		"stdout":    truncate(stdout.String(), MaxStdoutBytes),
		"stderr":    truncate(stderr.String(), MaxStderrBytes),
		"exit_code": exitCode,
	}, nil
}

func isBlocked(command string) bool {
	for _, p := range blockedPatterns {
		if strings.Contains(command, p) {
			return true
		}
	}
	return false
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
