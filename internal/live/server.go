package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/relaydesk/relaydesk/internal/bus"
	"github.com/relaydesk/relaydesk/internal/router"
)

const readDeadline = 60 * time.Second

// MessageRouter is the routing capability the server forwards inbound
// events to.
type MessageRouter interface {
	Route(ctx context.Context, in bus.InboundMessage) (*bus.OutboundMessage, error)
	RouteAudio(ctx context.Context, audio []byte, format, userID, sessionID, channel string, attrs map[string]any, onTranscript func(text string)) (*router.AudioResult, error)
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn wraps a websocket.Conn with a write mutex for thread safety.
// gorilla/websocket does NOT support concurrent writes.
type wsConn struct {
	*websocket.Conn
	mu     sync.Mutex
	closed atomic.Bool
}

func (c *wsConn) WriteJSONSafe(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteJSON(v)
}

// clientEvent is a typed event read from the widget transport.
type clientEvent struct {
	Type       string         `json:"type"`
	Text       string         `json:"text,omitempty"`
	Data       string         `json:"data,omitempty"` // base64 audio
	Format     string         `json:"format,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Server exposes the /ws endpoint for the web chat widget. Each accepted
// connection gets a single cooperative reader goroutine that walks the
// CONNECTING → OPEN → CLOSED state machine explicitly.
type Server struct {
	registry *Registry
	router   MessageRouter
	httpSrv  *http.Server
}

// NewServer creates the widget websocket server.
func NewServer(registry *Registry, msgRouter MessageRouter) *Server {
	return &Server{registry: registry, router: msgRouter}
}

// Handler returns the http handler serving /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(shutdownCtx)
	}()

	log.Printf("[WS] Listening on %s", addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// handleWS upgrades the connection, registers it, and runs its read loop.
// Identity comes from query parameters; the session defaults from
// (channel, userID) when absent.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionID = bus.ChannelWidget + ":" + userID
	}

	raw, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] ⚠️ Upgrade failed: %v", err)
		return
	}

	conn := &wsConn{Conn: raw}
	connectionID := uuid.NewString()

	s.registry.Register(connectionID, userID, sessionID,
		func(payload any) error { return conn.WriteJSONSafe(payload) },
		func() bool { return !conn.closed.Load() },
	)

	// Handshake done, the transport is usable.
	s.registry.MarkOpen(connectionID)
	log.Printf("[WS] 🔗 Connected: %s (%s/%s)", connectionID, userID, sessionID)

	conn.WriteJSONSafe(map[string]any{
		"type":         "connected",
		"connectionId": connectionID,
		"sessionId":    sessionID,
	})

	defer func() {
		conn.closed.Store(true)
		raw.Close()
		s.registry.MarkClosed(connectionID)
		s.registry.Unregister(connectionID)
		log.Printf("[WS] 🔌 Disconnected: %s", connectionID)
	}()

	raw.SetReadDeadline(time.Now().Add(readDeadline))
	raw.SetPongHandler(func(string) error {
		raw.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] ⚠️ Read error on %s: %v", connectionID, err)
			}
			return
		}
		raw.SetReadDeadline(time.Now().Add(readDeadline))

		var event clientEvent
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}

		switch event.Type {
		case "message":
			go s.handleMessage(r.Context(), conn, userID, sessionID, event)
		case "audio":
			go s.handleAudio(r.Context(), conn, userID, sessionID, event)
		case "close":
			return
		}
	}
}

// handleMessage routes a text event. The reply reaches the widget through
// the responses topic and the registry fan-out; only failures are reported
// directly on this connection.
func (s *Server) handleMessage(ctx context.Context, conn *wsConn, userID, sessionID string, event clientEvent) {
	_, err := s.router.Route(ctx, bus.InboundMessage{
		Text:       event.Text,
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    bus.ChannelWidget,
		ReceivedAt: time.Now(),
		Attributes: event.Attributes,
	})
	if err != nil {
		log.Printf("[WS] Route failed for %s/%s: %v", userID, sessionID, err)
		conn.WriteJSONSafe(errorEvent(err))
	}
}

// handleAudio transcribes and routes an audio event. The transcription is
// echoed back as an intermediate event; the callback fires before the route
// proceeds, so the client sees the transcription ahead of the final reply.
func (s *Server) handleAudio(ctx context.Context, conn *wsConn, userID, sessionID string, event clientEvent) {
	audio, err := base64.StdEncoding.DecodeString(event.Data)
	if err != nil {
		conn.WriteJSONSafe(errorEvent(fmt.Errorf("invalid audio payload: %w", err)))
		return
	}

	_, err = s.router.RouteAudio(ctx, audio, event.Format, userID, sessionID, bus.ChannelWidget, event.Attributes,
		func(text string) {
			conn.WriteJSONSafe(map[string]any{
				"type": "transcription",
				"text": text,
			})
		})
	if err != nil {
		log.Printf("[WS] Audio route failed for %s/%s: %v", userID, sessionID, err)
		conn.WriteJSONSafe(errorEvent(err))
	}
}

func errorEvent(err error) map[string]any {
	return map[string]any{
		"type":    "error",
		"message": "Sorry, something went wrong handling your message.",
		"detail":  err.Error(),
	}
}
