// ABOUTME: MCP-compatible HTTP server for local development clients
// ABOUTME: Routes JSON-RPC messages and plain HTTP calls to the tool registry

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/2389/hivenode/internal/bridge"
	"github.com/2389/hivenode/internal/hive"
	"github.com/2389/hivenode/internal/store"
	"github.com/2389/hivenode/internal/tools"
)

// Defaults for the push endpoint and event stream.
const (
	DefaultPushRate     = 10
	DefaultPushBurst    = 20
	DefaultPingInterval = 30 * time.Second
	recentJobsLimit     = 10
)

// JobSubmitter accepts pushed jobs. *bridge.Dispatcher satisfies it.
type JobSubmitter interface {
	Submit(ctx context.Context, job hive.Job) (string, error)
}

// BreakerReporter exposes the hive circuit breaker. *hive.Client satisfies it.
type BreakerReporter interface {
	State() gobreaker.State
}

// Config holds configuration for the MCP server.
type Config struct {
	Tools        *tools.Registry
	Jobs         JobSubmitter    // nil disables POST /invoke
	State        *bridge.State   // nil reports a zero bridge state
	Ledger       store.JobLedger // optional
	Breaker      BreakerReporter // optional; shown by /status
	NodeID       string
	Capabilities []string
	Version      string
	PushRate     float64 // pushed jobs per second
	PushBurst    int
	PingInterval time.Duration
	Logger       *slog.Logger
}

// Server implements the node's local HTTP surface.
type Server struct {
	tools        *tools.Registry
	jobs         JobSubmitter
	state        *bridge.State
	ledger       store.JobLedger
	breaker      BreakerReporter
	nodeID       string
	capabilities []string
	version      string
	pushLimiter  *rate.Limiter
	pingInterval time.Duration
	logger       *slog.Logger

	done      chan struct{} // closed by Close to end event streams
	closeOnce sync.Once
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Tools == nil {
		return nil, errors.New("tool registry is required")
	}
	if cfg.NodeID == "" {
		return nil, errors.New("node id is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	state := cfg.State
	if state == nil {
		state = bridge.NewState()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	pushRate := cfg.PushRate
	if pushRate <= 0 {
		pushRate = DefaultPushRate
	}
	pushBurst := cfg.PushBurst
	if pushBurst <= 0 {
		pushBurst = DefaultPushBurst
	}
	ping := cfg.PingInterval
	if ping <= 0 {
		ping = DefaultPingInterval
	}

	caps := make([]string, len(cfg.Capabilities))
	copy(caps, cfg.Capabilities)

	return &Server{
		tools:        cfg.Tools,
		jobs:         cfg.Jobs,
		state:        state,
		ledger:       cfg.Ledger,
		breaker:      cfg.Breaker,
		nodeID:       cfg.NodeID,
		capabilities: caps,
		version:      version,
		pushLimiter:  rate.NewLimiter(rate.Limit(pushRate), pushBurst),
		pingInterval: ping,
		logger:       logger.With("component", "mcp"),
		done:         make(chan struct{}),
	}, nil
}

// Close ends open event streams so an HTTP shutdown is not held up by them.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// RegisterRoutes registers every endpoint on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /mcp/message", s.handleMessage)
	mux.HandleFunc("GET /mcp/tools", s.handleListTools)
	mux.HandleFunc("POST /mcp/invoke", s.handleInvoke)
	mux.HandleFunc("POST /invoke", s.handlePush)
	mux.HandleFunc("GET /sse", s.handleSSE)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /status/jobs/{job_id}", s.handleJobStatus)
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// handleMessage processes one JSON-RPC message.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.sendJSONRPCError(w, nil, JSONRPCParseError, "failed to read request body", nil)
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.sendJSONRPCError(w, nil, JSONRPCInvalidRequest, "request body too large", nil)
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.sendJSONRPCError(w, nil, JSONRPCParseError, "invalid JSON", nil)
		return
	}

	if req.JSONRPC != "2.0" {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version", nil)
		return
	}

	// Notifications get no response body.
	isNotification := len(req.ID) == 0 || string(req.ID) == "null"
	if isNotification && strings.HasPrefix(req.Method, "notifications/") {
		s.logger.Debug("accepted MCP notification", "method", req.Method)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	s.logger.Debug("MCP request", "method", req.Method)

	switch req.Method {
	case "initialize":
		s.handleInitialize(w, req)
	case "tools/list":
		s.handleToolsList(w, req)
	case "tools/call":
		s.handleToolsCall(w, r, req)
	default:
		s.sendJSONRPCError(w, req.ID, JSONRPCMethodNotFound, "Unknown method: "+req.Method, nil)
	}
}

// handleInitialize answers the handshake. It has no side effects.
func (s *Server) handleInitialize(w http.ResponseWriter, req JSONRPCRequest) {
	s.sendJSONRPCResult(w, req.ID, MCPInitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo: MCPServerInfo{
			Name:    "hivenode-" + s.nodeID,
			Version: s.version,
		},
		Capabilities: map[string]any{
			"tools": map[string]any{},
		},
	})
}

// handleToolsList handles tools/list requests.
func (s *Server) handleToolsList(w http.ResponseWriter, req JSONRPCRequest) {
	s.sendJSONRPCResult(w, req.ID, MCPListToolsResult{Tools: s.toolInfos()})
}

// handleToolsCall handles tools/call requests.
func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request, req JSONRPCRequest) {
	var params MCPCallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "invalid params", nil)
			return
		}
	}
	// A missing name is just another unregistered one.
	if params.Name == "" || !s.tools.Has(params.Name) {
		s.sendJSONRPCError(w, req.ID, JSONRPCMethodNotFound, toolNotFound(params.Name), nil)
		return
	}

	result, err := s.invoke(r.Context(), params.Name, params.Arguments)

	var argErr *tools.ArgumentError
	switch {
	case errors.As(err, &argErr):
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, argErr.Error(), nil)
	case errors.Is(err, tools.ErrToolNotFound):
		s.sendJSONRPCError(w, req.ID, JSONRPCMethodNotFound, toolNotFound(params.Name), nil)
	case err != nil:
		s.sendJSONRPCResult(w, req.ID, MCPCallToolResult{
			Content: []MCPContent{{Type: "text", Text: encodeText(map[string]string{"error": err.Error()})}},
			IsError: true,
		})
	default:
		s.sendJSONRPCResult(w, req.ID, MCPCallToolResult{
			Content: []MCPContent{{Type: "text", Text: encodeText(result)}},
		})
	}
}

// invoke runs a tool for a local caller and records it in the ledger.
func (s *Server) invoke(ctx context.Context, name string, args json.RawMessage) (any, error) {
	requestID := uuid.New().String()
	start := time.Now()

	result, err := s.tools.Invoke(ctx, name, args)

	status := store.StatusOK
	if err != nil {
		status = store.StatusError
	}
	s.logger.Debug("tool call complete",
		"tool_name", name,
		"request_id", requestID,
		"is_error", err != nil,
	)

	var argErr *tools.ArgumentError
	if s.ledger != nil && !errors.Is(err, tools.ErrToolNotFound) && !errors.As(err, &argErr) {
		rec := &store.JobRecord{
			JobID:    requestID,
			Tool:     name,
			Source:   store.SourceDirect,
			Status:   status,
			Error:    errString(err),
			Duration: time.Since(start),
		}
		if lerr := s.ledger.RecordJob(context.WithoutCancel(ctx), rec); lerr != nil {
			s.logger.Warn("failed to record tool call", "error", lerr)
		}
	}
	return result, err
}

func (s *Server) toolInfos() []MCPToolInfo {
	descs := s.tools.List()
	infos := make([]MCPToolInfo, len(descs))
	for i, d := range descs {
		infos[i] = MCPToolInfo{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema(),
		}
	}
	return infos
}

func toolNotFound(name string) string {
	return fmt.Sprintf("Tool not found: %s", name)
}

// encodeText serializes a tool result for a text content block.
func encodeText(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"error": "unserializable result: " + err.Error()})
	}
	return string(b)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
