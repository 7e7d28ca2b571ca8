// Package monitor is the client for the OAuth-protected metrics/incident
// API. Every call obtains a valid bearer credential first; a timeout or
// non-2xx status surfaces as an error that feeds the orchestrator's
// fallback cascade.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/opschat/opschat/internal/auth"
	"github.com/opschat/opschat/internal/log"
)

// DefaultPageSize bounds problem listings.
const DefaultPageSize = 10

// credentialSource yields a valid bearer credential. Consumer-defined so
// tests can substitute a fixed credential.
type credentialSource interface {
	EnsureValid(ctx context.Context) (auth.Credential, error)
}

// Client is a lightweight HTTP client for the monitor API.
type Client struct {
	baseURL    string
	creds      credentialSource
	httpClient *http.Client
	logger     log.Logger
}

// NewClient creates a monitor API client. timeout bounds every outbound
// call; exceeding it is a backend failure, not a hang.
func NewClient(baseURL string, creds credentialSource, timeout time.Duration, logger log.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("monitor base URL is required")
	}
	if creds == nil {
		return nil, fmt.Errorf("credential source is required")
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// ListProblems fetches detected problems for a relative time range
// (e.g. "2h") with a bounded page size.
func (c *Client) ListProblems(ctx context.Context, relativeTime string, pageSize int) (*ProblemFeed, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	query := url.Values{}
	if relativeTime != "" {
		query.Set("from", "now-"+relativeTime)
	}
	query.Set("pageSize", strconv.Itoa(pageSize))

	var feed ProblemFeed
	if err := c.get(ctx, "/problems", query, &feed); err != nil {
		return nil, fmt.Errorf("listing problems: %w", err)
	}

	c.logger.Debug("fetched problems", "count", len(feed.Problems), "total", feed.TotalCount)
	return &feed, nil
}

// EnvironmentInfo fetches metadata about the monitored environment.
func (c *Client) EnvironmentInfo(ctx context.Context) (*Environment, error) {
	var env Environment
	if err := c.get(ctx, "/environment", nil, &env); err != nil {
		return nil, fmt.Errorf("fetching environment info: %w", err)
	}
	return &env, nil
}

// get performs an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	cred, err := c.creds.EnsureValid(ctx)
	if err != nil {
		return fmt.Errorf("obtaining credential: %w", err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
