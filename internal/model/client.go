// Package model is the client for the local language-model backend.
// A chat-style request/response endpoint plus a lightweight health check;
// failures feed the orchestrator's fallback cascade.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/opschat/opschat/internal/log"
)

// generateRequest is the chat request payload.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateResponse is the chat response payload.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Client talks to the model backend over HTTP.
type Client struct {
	host       string
	modelName  string
	httpClient *http.Client
	logger     log.Logger
}

// NewClient creates a model backend client. timeout bounds every call.
func NewClient(host, modelName string, timeout time.Duration, logger log.Logger) (*Client, error) {
	if host == "" {
		return nil, fmt.Errorf("model host is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}

	return &Client{
		host:       strings.TrimRight(host, "/"),
		modelName:  modelName,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Chat sends a prompt and returns the generated text. The optional extra
// record is folded into the prompt as labeled context lines, in stable key
// order.
func (c *Client) Chat(ctx context.Context, prompt string, extra map[string]string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.modelName,
		Prompt: buildPrompt(prompt, extra),
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("model request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("model returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if out.Response == "" {
		return "", fmt.Errorf("model returned empty response")
	}

	return out.Response, nil
}

// Health probes the backend. Any non-200 or transport error means the model
// is unavailable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("model health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model health check returned status %d", resp.StatusCode)
	}
	return nil
}

// buildPrompt prefixes the prompt with labeled context lines.
func buildPrompt(prompt string, extra map[string]string) string {
	if len(extra) == 0 {
		return prompt
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Context:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, extra[k])
	}
	b.WriteString("\n")
	b.WriteString(prompt)
	return b.String()
}
