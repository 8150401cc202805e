package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/relaydesk/relaydesk/internal/channels"
	"github.com/relaydesk/relaydesk/internal/config"
)

var transportClient = &http.Client{Timeout: 30 * time.Second}

// messagingTransport builds the outbound send capability for the messaging
// channel from its configured delivery endpoint.
func messagingTransport(cfg *config.MessagingConfig) channels.MessagingSendFunc {
	return func(ctx context.Context, userID, text string) error {
		return postJSON(ctx, cfg.Endpoint, cfg.Token, map[string]any{
			"recipient": userID,
			"text":      text,
		})
	}
}

// emailTransport builds the outbound send capability for the email channel
// from its configured relay endpoint.
func emailTransport(cfg *config.EmailConfig) channels.EmailSendFunc {
	return func(ctx context.Context, to, subject, body string) error {
		return postJSON(ctx, cfg.SMTPEndpoint, "", map[string]any{
			"from":    cfg.FromAddress,
			"to":      to,
			"subject": subject,
			"body":    body,
		})
	}
}

func postJSON(ctx context.Context, endpoint, token string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := transportClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("delivery endpoint HTTP %d", resp.StatusCode)
	}
	return nil
}
