// ABOUTME: Workflow trigger capability that posts payloads to n8n webhooks.
// ABOUTME: Returns the webhook's HTTP status and decoded response body.

package builtins

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/hivenode/internal/tools"
)

// N8NTimeout bounds a single webhook call.
const N8NTimeout = 30 * time.Second

// DefaultN8NURL is used when no base URL is configured.
const DefaultN8NURL = "http://localhost:5678"

type n8nArgs struct {
	Workflow string          `json:"workflow"`
	Payload  json.RawMessage `json:"payload"`
}

// N8NTrigger fires n8n workflows by webhook name.
type N8NTrigger struct {
	baseURL string
	client  *http.Client
}

// NewN8NTrigger creates the workflow handler. An empty baseURL falls back to
// DefaultN8NURL and a nil client to one with N8NTimeout.
func NewN8NTrigger(baseURL string, client *http.Client) *N8NTrigger {
	if baseURL == "" {
		baseURL = DefaultN8NURL
	}
	if client == nil {
		client = &http.Client{Timeout: N8NTimeout}
	}
	return &N8NTrigger{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Descriptor implements tools.Tool.
func (n *N8NTrigger) Descriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:        "n8n_trigger",
		Description: "Trigger n8n workflow by webhook name",
		Params: []tools.Param{
			{Name: "workflow", Type: tools.TypeString, Required: true},
			{Name: "payload", Type: tools.TypeObject},
		},
		Timeout: N8NTimeout,
	}
}

// Invoke implements tools.Tool.
func (n *N8NTrigger) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := tools.DecodeArgs[n8nArgs](raw)
	if err != nil {
		return nil, err
	}

	payload := args.Payload
	if len(payload) == 0 || string(payload) == "null" {
		payload = json.RawMessage("{}")
	}

	ctx, cancel := context.WithTimeout(ctx, N8NTimeout)
	defer cancel()

	endpoint := n.baseURL + "/webhook/" + url.PathEscape(args.Workflow)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling webhook: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading webhook response: %w", err)
	}

	var result any
	if err := json.Unmarshal(body, &result); err != nil {
		result = string(body)
	}
	return map[string]any{"status": resp.StatusCode, "result": result}, nil
}
