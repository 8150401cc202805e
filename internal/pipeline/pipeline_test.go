package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/internal/memory"
)

func sessionWithHistory() *memory.SessionMemory {
	mem := memory.NewSessionMemory("u1", "widget:u1")
	mem.Append(memory.ConversationTurn{
		MessageID:    "m1",
		InboundText:  "Hi",
		OutboundText: "Hello! How can I help?",
		Channel:      "widget",
		Timestamp:    time.Now(),
	}, 10)
	return mem
}

func TestHTTPGenerator_GenerateReply(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(Reply{Text: "My pleasure.", HandoverRequired: false})
	}))
	defer srv.Close()

	gen := NewHTTPGenerator(srv.URL, "test-key", 5*time.Second)
	reply, err := gen.GenerateReply(context.Background(), "thanks", sessionWithHistory(), "widget", map[string]any{"locale": "en"})
	require.NoError(t, err)
	assert.Equal(t, "My pleasure.", reply.Text)
	assert.False(t, reply.HandoverRequired)

	assert.Equal(t, "thanks", captured["message"])
	assert.Equal(t, "u1", captured["userId"])
	assert.Equal(t, "widget:u1", captured["sessionId"])
	assert.Equal(t, "widget", captured["channel"])

	// Each turn expands into a user/assistant message pair.
	history, ok := captured["history"].([]any)
	require.True(t, ok)
	require.Len(t, history, 2)
	first := history[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
	assert.Equal(t, "Hi", first["content"])
	second := history[1].(map[string]any)
	assert.Equal(t, "assistant", second["role"])
	assert.Equal(t, "Hello! How can I help?", second["content"])
}

func TestHTTPGenerator_HandoverFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Reply{Text: "Connecting you to an agent.", HandoverRequired: true})
	}))
	defer srv.Close()

	gen := NewHTTPGenerator(srv.URL, "", 5*time.Second)
	reply, err := gen.GenerateReply(context.Background(), "human please", sessionWithHistory(), "widget", nil)
	require.NoError(t, err)
	assert.True(t, reply.HandoverRequired)
}

func TestHTTPGenerator_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	gen := NewHTTPGenerator(srv.URL, "", 5*time.Second)
	_, err := gen.GenerateReply(context.Background(), "Hi", sessionWithHistory(), "widget", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPGenerator_EmptyReplyRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Reply{Text: ""})
	}))
	defer srv.Close()

	gen := NewHTTPGenerator(srv.URL, "", 5*time.Second)
	_, err := gen.GenerateReply(context.Background(), "Hi", sessionWithHistory(), "widget", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty reply")
}

func TestHTTPGenerator_Unreachable(t *testing.T) {
	gen := NewHTTPGenerator("http://127.0.0.1:1", "", time.Second)
	_, err := gen.GenerateReply(context.Background(), "Hi", sessionWithHistory(), "widget", nil)
	require.Error(t, err)
}
