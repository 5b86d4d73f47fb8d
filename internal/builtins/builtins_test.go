// ABOUTME: Tests for the default capability handlers.
// ABOUTME: Exercises filesystem limits, exec safe mode, webhook calls and bark probing.

package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hivenode/internal/tools"
)

func invoke(t *testing.T, tool tools.Tool, args string) (map[string]any, error) {
	t.Helper()
	result, err := tool.Invoke(context.Background(), json.RawMessage(args))
	if err != nil {
		return nil, err
	}
	m, ok := result.(map[string]any)
	require.True(t, ok, "result should be a map, got %T", result)
	return m, nil
}

func TestAll_RegistersEveryHandler(t *testing.T) {
	registry := tools.NewRegistry(slog.Default())
	registry.MustRegister(All(Options{})...)

	assert.Equal(t, []string{"bark_tts", "n8n_trigger", "local_exec", "filesystem"}, registry.Names())
	for _, d := range registry.List() {
		assert.NotEmpty(t, d.Description, d.Name)
	}
}

func TestFilesystem_ListCapsEntries(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 150; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("f%03d", i)), nil, 0o644))
	}

	result, err := invoke(t, NewFilesystem(), fmt.Sprintf(`{"action":"list","path":%q}`, dir))
	require.NoError(t, err)
	assert.Len(t, result["items"], MaxListEntries)
}

func TestFilesystem_ListEmptyDir(t *testing.T) {
	result, err := invoke(t, NewFilesystem(), fmt.Sprintf(`{"action":"list","path":%q}`, t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, []string{}, result["items"])
}

func TestFilesystem_WriteThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.txt")
	fs := NewFilesystem()

	result, err := invoke(t, fs, fmt.Sprintf(`{"action":"write","path":%q,"content":"hello"}`, path))
	require.NoError(t, err)
	assert.Equal(t, "written", result["status"])

	result, err = invoke(t, fs, fmt.Sprintf(`{"action":"read","path":%q}`, path))
	require.NoError(t, err)
	assert.Equal(t, "hello", result["content"])
}

func TestFilesystem_ReadTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	require.NoError(t, os.WriteFile(path, make([]byte, MaxReadBytes+500), 0o644))

	result, err := invoke(t, NewFilesystem(), fmt.Sprintf(`{"action":"read","path":%q}`, path))
	require.NoError(t, err)
	assert.Len(t, result["content"], MaxReadBytes)
}

func TestFilesystem_WriteNeedsContent(t *testing.T) {
	_, err := invoke(t, NewFilesystem(), `{"action":"write","path":"/tmp/x"}`)
	var argErr *tools.ArgumentError
	assert.ErrorAs(t, err, &argErr)
}

func TestFilesystem_MissingPath(t *testing.T) {
	_, err := invoke(t, NewFilesystem(), `{"action":"read","path":"/definitely/not/here"}`)
	assert.Error(t, err)
}

func TestLocalExec_RunsCommand(t *testing.T) {
	result, err := invoke(t, NewLocalExec(), `{"command":"echo hi; echo oops 1>&2; exit 3"}`)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", result["stdout"])
	assert.Equal(t, "oops\n", result["stderr"])
	assert.Equal(t, 3, result["exit_code"])
}

func TestLocalExec_SafeModeBlocks(t *testing.T) {
	_, err := invoke(t, NewLocalExec(), `{"command":"rm -rf /tmp/nothing"}`)
	assert.ErrorIs(t, err, ErrCommandBlocked)
}

func TestLocalExec_SafeModeOff(t *testing.T) {
	result, err := invoke(t, NewLocalExec(), `{"command":"echo 'chmod 777'","safe_mode":false}`)
	require.NoError(t, err)
	assert.Equal(t, "chmod 777\n", result["stdout"])
}

func TestLocalExec_Timeout(t *testing.T) {
	e := NewLocalExec()
	e.timeout = 50 * time.Millisecond

	_, err := invoke(t, e, `{"command":"sleep 5"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestLocalExec_DescriptorDeclaresTimeout(t *testing.T) {
	assert.Equal(t, ExecTimeout, NewLocalExec().Descriptor().Timeout)
	assert.False(t, NewFilesystem().Descriptor().HasTimeout())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"héllo", 2, "h"},
		{"héllo", 3, "hé"},
		{strings.Repeat("é", 10), 5, "éé"},
		{"😀x", 3, ""},
		{"a😀", 4, "a"},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		assert.Equal(t, tt.want, got, "truncate(%q, %d)", tt.in, tt.n)
		assert.True(t, utf8.ValidString(got))
		assert.LessOrEqual(t, len(got), tt.n)
	}
}

func TestN8NTrigger_PostsPayload(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	result, err := invoke(t, NewN8NTrigger(srv.URL, srv.Client()), `{"workflow":"daily","payload":{"a":1}}`)
	require.NoError(t, err)

	assert.Equal(t, "/webhook/daily", gotPath)
	assert.JSONEq(t, `{"a":1}`, gotBody)
	assert.Equal(t, http.StatusOK, result["status"])
	assert.Equal(t, map[string]any{"ok": true}, result["result"])
}

func TestN8NTrigger_NonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no such webhook"))
	}))
	defer srv.Close()

	result, err := invoke(t, NewN8NTrigger(srv.URL, nil), `{"workflow":"missing"}`)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, result["status"])
	assert.Equal(t, "no such webhook", result["result"])
}

func TestN8NTrigger_Unreachable(t *testing.T) {
	_, err := invoke(t, NewN8NTrigger("http://127.0.0.1:1", nil), `{"workflow":"x"}`)
	assert.Error(t, err)
}

func TestBarkTTS_NotInstalled(t *testing.T) {
	b := NewBarkTTS(filepath.Join(t.TempDir(), "no-python"), t.TempDir())

	_, err := invoke(t, b, `{"text":"hello"}`)
	assert.ErrorIs(t, err, ErrBarkNotInstalled)
}
