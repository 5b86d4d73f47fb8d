// ABOUTME: Tests for the hive client against an httptest dispatch service
// ABOUTME: Covers request shapes, auth headers, 401 invalidation and breaker behavior

package hive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCredentials struct {
	token       string
	err         error
	invalidated atomic.Int32
}

func (s *stubCredentials) Token(context.Context) (string, error) {
	return s.token, s.err
}

func (s *stubCredentials) Invalidate() { s.invalidated.Add(1) }

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *stubCredentials) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	creds := &stubCredentials{token: "tok-123"}
	c := NewClient(Config{
		BaseURL:     srv.URL + "/",
		NodeID:      "wsl-local",
		Credentials: creds,
		HTTPClient:  srv.Client(),
		Breaker:     BreakerConfig{MaxFailures: 2, Timeout: time.Minute},
	})
	return c, creds
}

func TestRegister_SendsIdentity(t *testing.T) {
	var gotAuth, gotPath string
	var got Registration
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	})

	err := c.Register(context.Background(), Registration{
		NodeID:       "wsl-local",
		Capabilities: []string{"filesystem", "local-exec"},
		CallbackURL:  "http://localhost:8000/invoke",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "/nodes/register", gotPath)
	assert.Equal(t, "wsl-local", got.NodeID)
	assert.Equal(t, []string{"filesystem", "local-exec"}, got.Capabilities)
	assert.Equal(t, "http://localhost:8000/invoke", got.CallbackURL)
}

func TestRegister_Non2xxIsTransportError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "node banned", http.StatusForbidden)
	})

	err := c.Register(context.Background(), Registration{NodeID: "wsl-local"})
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "register", te.Op)
	assert.Equal(t, http.StatusForbidden, te.StatusCode)
	assert.Contains(t, err.Error(), "node banned")
}

func TestPending_DecodesJobsInOrder(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/nodes/wsl-local/pending", r.URL.Path)
		_, _ = io.WriteString(w, `[
			{"job_id":"j1","tool":"filesystem","args":{"action":"list","path":"/tmp"}},
			{"job_id":"j2","tool":"local_exec","args":{"command":"ls"},"callback_url":"http://x"}
		]`)
	})

	jobs, err := c.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "j1", jobs[0].JobID)
	assert.Equal(t, "filesystem", jobs[0].Tool)
	assert.JSONEq(t, `{"action":"list","path":"/tmp"}`, string(jobs[0].Args))
	assert.Equal(t, "j2", jobs[1].JobID)
	assert.Equal(t, "http://x", jobs[1].CallbackURL)
}

func TestPending_EmptyBodies(t *testing.T) {
	for _, body := range []string{"", "null", "[]"} {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, body)
		})
		jobs, err := c.Pending(context.Background())
		require.NoError(t, err, body)
		assert.Empty(t, jobs, body)
		assert.NotNil(t, jobs, body)
	}
}

func TestPending_MalformedBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"jobs":`)
	})

	_, err := c.Pending(context.Background())
	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestReport_PostsResult(t *testing.T) {
	var got map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/nodes/wsl-local/result", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
	})

	err := c.Report(context.Background(), "j1", map[string]any{"error": "Unknown tool"})
	require.NoError(t, err)
	assert.Equal(t, "j1", got["job_id"])
	assert.Equal(t, map[string]any{"error": "Unknown tool"}, got["result"])
}

func TestUnauthorizedInvalidatesCredential(t *testing.T) {
	c, creds := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Pending(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, int32(1), creds.invalidated.Load())
}

func TestCredentialFailureSkipsRequest(t *testing.T) {
	var hits atomic.Int32
	c, creds := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})
	creds.err = errors.New("auth down")

	_, err := c.Pending(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth down")
	assert.Zero(t, hits.Load())
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for i := 0; i < 2; i++ {
		_, err := c.Pending(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, c.State())

	_, err := c.Pending(context.Background())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not reach the hive")
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 5; i++ {
		_, _ = c.Pending(context.Background())
	}
	assert.Equal(t, gobreaker.StateClosed, c.State())
}

func TestUnreachableHive(t *testing.T) {
	c := NewClient(Config{
		BaseURL:     "http://127.0.0.1:1",
		NodeID:      "n",
		Credentials: &stubCredentials{token: "t"},
		Timeout:     time.Second,
	})

	_, err := c.Pending(context.Background())
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.StatusCode)
}

func TestSnippet(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, snippet(long), 203)
	assert.Equal(t, "short", snippet([]byte("  short\n")))
}
