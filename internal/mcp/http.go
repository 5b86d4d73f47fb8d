// ABOUTME: Plain HTTP endpoints: tool listing, direct invoke, job push, SSE, health and status
// ABOUTME: Complements the JSON-RPC message endpoint for clients that do not speak MCP

package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/2389/hivenode/internal/bridge"
	"github.com/2389/hivenode/internal/hive"
	"github.com/2389/hivenode/internal/store"
	"github.com/2389/hivenode/internal/tools"
)

// InvokeRequest is the body of POST /mcp/invoke.
type InvokeRequest struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string     `json:"status"`
	NodeID        string     `json:"node_id"`
	Bridge        string     `json:"bridge"`
	JobsProcessed int64      `json:"jobs_processed"`
	LastSync      *time.Time `json:"last_sync"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	NodeID            string      `json:"node_id"`
	Capabilities      []string    `json:"capabilities"`
	Registered        bool        `json:"registered"`
	RegistrationError string      `json:"registration_error,omitempty"`
	JobsProcessed     int64       `json:"jobs_processed"`
	LastSync          *time.Time  `json:"last_sync"`
	PollActive        bool        `json:"poll_active"`
	Uptime            string      `json:"uptime"`
	HiveBreaker       string      `json:"hive_breaker,omitempty"` // closed, half-open or open
	Jobs              *JobTotals  `json:"jobs,omitempty"`         // nil without a ledger
	RecentJobs        []JobStatus `json:"recent_jobs"`
}

// JobTotals summarizes the ledger. Unreported counts hive jobs only.
type JobTotals struct {
	Total      int64      `json:"total"`
	Failed     int64      `json:"failed"`
	Unreported int64      `json:"unreported"`
	LastJobAt  *time.Time `json:"last_job_at"`
}

// JobStatus is one ledger entry as shown by /status.
type JobStatus struct {
	JobID       string    `json:"job_id"`
	Tool        string    `json:"tool"`
	Source      string    `json:"source"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Reported    bool      `json:"reported"`
	ReportError string    `json:"report_error,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	At          time.Time `json:"at"`
}

func jobStatus(rec *store.JobRecord) JobStatus {
	return JobStatus{
		JobID:       rec.JobID,
		Tool:        rec.Tool,
		Source:      rec.Source,
		Status:      rec.Status,
		Error:       rec.Error,
		Reported:    rec.Reported,
		ReportError: rec.ReportError,
		DurationMS:  rec.Duration.Milliseconds(),
		At:          rec.CreatedAt,
	}
}

// handleListTools handles GET /mcp/tools.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, MCPListToolsResult{Tools: s.toolInfos()})
}

// handleInvoke handles POST /mcp/invoke.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req InvokeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, MaxRequestBodySize)).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Tool == "" {
		s.sendJSONError(w, http.StatusBadRequest, "tool is required")
		return
	}
	if !s.tools.Has(req.Tool) {
		s.sendJSONError(w, http.StatusNotFound, toolNotFound(req.Tool))
		return
	}

	result, err := s.invoke(r.Context(), req.Tool, req.Args)

	var argErr *tools.ArgumentError
	switch {
	case errors.As(err, &argErr):
		s.sendJSONError(w, http.StatusBadRequest, argErr.Error())
	case errors.Is(err, tools.ErrToolNotFound):
		s.sendJSONError(w, http.StatusNotFound, toolNotFound(req.Tool))
	case err != nil:
		s.sendJSON(w, http.StatusOK, map[string]any{"result": map[string]string{"error": err.Error()}})
	default:
		s.sendJSON(w, http.StatusOK, map[string]any{"result": result})
	}
}

// handlePush handles POST /invoke: a job pushed by the hive. The job is
// acknowledged before its handler runs.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		s.sendJSONError(w, http.StatusServiceUnavailable, "job push disabled")
		return
	}
	if !s.pushLimiter.Allow() {
		w.Header().Set("Retry-After", "1")
		s.sendJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var job hive.Job
	if err := json.NewDecoder(io.LimitReader(r.Body, MaxRequestBodySize)).Decode(&job); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if job.Tool == "" {
		s.sendJSONError(w, http.StatusBadRequest, "tool is required")
		return
	}

	jobID, err := s.jobs.Submit(r.Context(), job)
	if err != nil {
		if errors.Is(err, bridge.ErrDuplicateJob) {
			s.logger.Info("ignoring duplicate pushed job", "job_id", job.JobID)
			s.sendJSON(w, http.StatusOK, map[string]string{"status": "duplicate", "job_id": job.JobID})
			return
		}
		if errors.Is(err, bridge.ErrDispatcherClosed) {
			s.sendJSONError(w, http.StatusServiceUnavailable, "node shutting down")
			return
		}
		s.logger.Error("failed to submit pushed job", "job_id", job.JobID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.logger.Info("accepted pushed job", "job_id", jobID, "tool", job.Tool)
	s.sendJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "job_id": jobID})
}

// handleSSE streams an endpoint announcement followed by periodic pings.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	s.writeSSEEvent(w, "endpoint", map[string]string{"type": "endpoint", "url": "/mcp/message"})
	flusher.Flush()

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.writeSSEEvent(w, "ping", map[string]string{"type": "ping"})
			flusher.Flush()
		}
	}
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()
	bridgeStatus := "disconnected"
	if snap.Connected() {
		bridgeStatus = "connected"
	}
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		NodeID:        s.nodeID,
		Bridge:        bridgeStatus,
		JobsProcessed: snap.JobsProcessed,
		LastSync:      snap.LastSync,
	})
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()
	resp := StatusResponse{
		NodeID:            s.nodeID,
		Capabilities:      s.capabilities,
		Registered:        snap.Registered,
		RegistrationError: snap.RegistrationError,
		JobsProcessed:     snap.JobsProcessed,
		LastSync:          snap.LastSync,
		PollActive:        snap.PollActive,
		Uptime:            "healthy",
		RecentJobs:        []JobStatus{},
	}
	if s.breaker != nil {
		resp.HiveBreaker = s.breaker.State().String()
	}

	if s.ledger != nil {
		stats, err := s.ledger.Stats(r.Context())
		if err != nil {
			s.logger.Warn("failed to load job stats", "error", err)
		} else {
			resp.Jobs = &JobTotals{
				Total:      stats.Total,
				Failed:     stats.Failed,
				Unreported: stats.Unreported,
				LastJobAt:  stats.LastJobTime,
			}
		}

		recs, err := s.ledger.RecentJobs(r.Context(), recentJobsLimit)
		if err != nil {
			s.logger.Warn("failed to load recent jobs", "error", err)
		}
		for _, rec := range recs {
			resp.RecentJobs = append(resp.RecentJobs, jobStatus(rec))
		}
	}

	s.sendJSON(w, http.StatusOK, resp)
}

// handleJobStatus handles GET /status/jobs/{job_id}: the newest ledger
// entry for a job id.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.sendJSONError(w, http.StatusServiceUnavailable, "job ledger disabled")
		return
	}

	jobID := r.PathValue("job_id")
	rec, err := s.ledger.GetJob(r.Context(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "job not found: "+jobID)
		return
	}
	if err != nil {
		s.logger.Error("failed to load job", "job_id", jobID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.sendJSON(w, http.StatusOK, jobStatus(rec))
}

// writeSSEEvent writes one SSE event.
func (s *Server) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// sendJSON writes a JSON response with the given status.
func (s *Server) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}
