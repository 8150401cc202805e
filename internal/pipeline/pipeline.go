// Package pipeline defines the processing-pipeline collaborator that turns
// an inbound message plus session context into a reply. The core performs no
// retries; retry policy belongs to the pipeline itself.
package pipeline

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

// Reply is the pipeline's answer for a single inbound message.
type Reply struct {
	Text             string `json:"text"`
	HandoverRequired bool   `json:"handoverRequired"`
}

// Generator produces a reply for an inbound message given session context.
type Generator interface {
	GenerateReply(ctx context.Context, text string, mem *memory.SessionMemory, channel string, attrs map[string]any) (*Reply, error)
}

// HTTPGenerator calls a remote reply-generation endpoint.
type HTTPGenerator struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
}

// NewHTTPGenerator creates a pipeline client with a bounded call timeout.
func NewHTTPGenerator(endpoint, apiKey string, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGenerator{
		Endpoint:   strings.TrimRight(endpoint, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// GenerateReply implements Generator.
func (g *HTTPGenerator) GenerateReply(ctx context.Context, text string, mem *memory.SessionMemory, channel string, attrs map[string]any) (*Reply, error) {
	history := make([]map[string]string, 0, len(mem.History)*2)
	for _, turn := range mem.History {
		history = append(history,
			map[string]string{"role": "user", "content": turn.InboundText},
			map[string]string{"role": "assistant", "content": turn.OutboundText},
		)
	}

	body, err := json.Marshal(map[string]any{
		"message":    text,
		"userId":     mem.UserID,
		"sessionId":  mem.SessionID,
		"channel":    channel,
		"history":    history,
		"attributes": attrs,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.APIKey)
	}

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call pipeline: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pipeline HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var reply Reply
	if err := json.Unmarshal(respBody, &reply); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if reply.Text == "" {
		return nil, fmt.Errorf("pipeline returned empty reply")
	}
	return &reply, nil
}
