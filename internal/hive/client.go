// ABOUTME: HTTP client for the dispatch service's node endpoints
// ABOUTME: Each call fetches a fresh bearer credential and runs through the circuit breaker

package hive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// DefaultTimeout bounds every hive request.
const DefaultTimeout = 10 * time.Second

const maxResponseBytes = 1 << 20

// CredentialSource supplies bearer tokens. *auth.TokenManager satisfies it.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Job is a unit of work handed out by the hive.
type Job struct {
	JobID       string          `json:"job_id"`
	Tool        string          `json:"tool"`
	Args        json.RawMessage `json:"args,omitempty"`
	CallbackURL string          `json:"callback_url,omitempty"`
}

// Registration announces the node and what it can do.
type Registration struct {
	NodeID       string   `json:"node_id"`
	Capabilities []string `json:"capabilities"`
	CallbackURL  string   `json:"callback_url"`
}

type resultReport struct {
	JobID  string `json:"job_id"`
	Result any    `json:"result"`
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	NodeID      string
	Credentials CredentialSource
	HTTPClient  *http.Client
	Timeout     time.Duration
	Breaker     BreakerConfig
	Logger      *slog.Logger
}

// Client calls the hive on behalf of one node.
type Client struct {
	baseURL string
	nodeID  string
	creds   CredentialSource
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*response]
	logger  *slog.Logger
}

type response struct {
	status int
	body   []byte
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "hive")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: newPooledTransport(timeout),
			Timeout:   timeout,
		}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		nodeID:  cfg.NodeID,
		creds:   cfg.Credentials,
		http:    httpClient,
		breaker: newBreaker(cfg.Breaker, logger),
		logger:  logger,
	}
}

// Register announces the node to the hive.
func (c *Client) Register(ctx context.Context, reg Registration) error {
	_, err := c.do(ctx, "register", http.MethodPost, "/nodes/register", reg)
	return err
}

// Pending fetches the jobs currently queued for this node, in hive order.
func (c *Client) Pending(ctx context.Context) ([]Job, error) {
	resp, err := c.do(ctx, "pending", http.MethodGet, c.nodePath("pending"), nil)
	if err != nil {
		return nil, err
	}

	body := bytes.TrimSpace(resp.body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return []Job{}, nil
	}
	var jobs []Job
	if err := json.Unmarshal(body, &jobs); err != nil {
		return nil, &TransportError{Op: "pending", StatusCode: resp.status, Err: fmt.Errorf("decoding jobs: %w", err)}
	}
	return jobs, nil
}

// Report posts a job's result.
func (c *Client) Report(ctx context.Context, jobID string, result any) error {
	_, err := c.do(ctx, "report", http.MethodPost, c.nodePath("result"), resultReport{JobID: jobID, Result: result})
	return err
}

// State returns the breaker state for status reporting.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) nodePath(suffix string) string {
	return "/nodes/" + url.PathEscape(c.nodeID) + "/" + suffix
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any) (*response, error) {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("hive %s: credential: %w", op, err)
	}

	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, &TransportError{Op: op, Err: fmt.Errorf("encoding request: %w", err)}
		}
	}

	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.send(ctx, op, method, path, token, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &TransportError{Op: op, Err: fmt.Errorf("%w: %w", ErrCircuitOpen, err)}
		}
		if IsUnauthorized(err) {
			c.logger.Warn("hive rejected credential, invalidating", "op", op)
			c.creds.Invalidate()
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, op, method, path, token string, body []byte) (*response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Op: op, StatusCode: httpResp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &TransportError{
			Op:         op,
			StatusCode: httpResp.StatusCode,
			Body:       snippet(data),
		}
	}
	return &response{status: httpResp.StatusCode, body: data}, nil
}

// snippet trims a response body for inclusion in an error message.
func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
