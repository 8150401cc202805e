// Package transcribe defines the audio transcription collaborator used for
// voice messages on duplex channels.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Transcript is the text produced from an audio clip.
type Transcript struct {
	Text             string `json:"text"`
	DetectedLanguage string `json:"detectedLanguage,omitempty"`
}

// Transcriber converts audio bytes into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format, languageHint string) (*Transcript, error)
}

// HTTPTranscriber calls a remote transcription endpoint with a multipart
// upload.
type HTTPTranscriber struct {
	Endpoint   string
	APIKey     string
	HTTPClient *http.Client
}

// NewHTTPTranscriber creates a transcription client.
func NewHTTPTranscriber(endpoint, apiKey string, timeout time.Duration) *HTTPTranscriber {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPTranscriber{
		Endpoint:   strings.TrimRight(endpoint, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Transcribe implements Transcriber. Failure aborts the audio route.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, audio []byte, format, languageHint string) (*Transcript, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "audio."+format)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("write audio: %w", err)
	}
	if languageHint != "" {
		writer.WriteField("language", languageHint)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.Endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if t.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.APIKey)
	}

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call transcription: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transcription HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var transcript Transcript
	if err := json.Unmarshal(respBody, &transcript); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if transcript.Text == "" {
		return nil, fmt.Errorf("transcription returned empty text")
	}
	return &transcript, nil
}
