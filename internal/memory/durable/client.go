// Package durable implements the client for the external memory-engine
// service that holds the long-term session replica.
package durable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/relaydesk/relaydesk/internal/memory"
)

// Client talks to the memory-engine HTTP API. All failures are reported to
// the caller; the context manager decides how to degrade.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a memory-engine client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type contextEnvelope struct {
	SessionID string                `json:"sessionId"`
	UserID    string                `json:"userId,omitempty"`
	Context   *memory.SessionMemory `json:"context"`
}

// Get implements memory.DurableStore. Returns nil when the engine holds no
// replica for the session.
func (c *Client) Get(ctx context.Context, userID, sessionID string) (*memory.SessionMemory, error) {
	endpoint := fmt.Sprintf("%s/context/%s", c.BaseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", memory.ErrDurableUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", memory.ErrDurableUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", memory.ErrDurableUnavailable, err)
	}

	var envelope contextEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: parse body: %w", memory.ErrDurableUnavailable, err)
	}
	if envelope.Context == nil || envelope.Context.SessionID == "" {
		// Engine answers {"sessionId": ..., "context": {}} for unknown sessions.
		return nil, nil
	}
	return envelope.Context, nil
}

// Put implements memory.DurableStore.
func (c *Client) Put(ctx context.Context, userID, sessionID string, mem *memory.SessionMemory) error {
	payload, err := json.Marshal(contextEnvelope{
		SessionID: sessionID,
		UserID:    userID,
		Context:   mem,
	})
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	endpoint := fmt.Sprintf("%s/context/%s", c.BaseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", memory.ErrDurableUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d", memory.ErrDurableUnavailable, resp.StatusCode)
	}
	return nil
}

// Health probes the engine's /health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", memory.ErrDurableUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d", memory.ErrDurableUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
}
