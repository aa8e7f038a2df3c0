package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/lemmaiot/sme-consultant/internal/identity"
)

// wsMessage represents WebSocket message structure.
type wsMessage struct {
	Type      string `json:"type"`
	VisitorID string `json:"visitor_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// WebSocketHandler serves the chat over a WebSocket. The client opens
// with a hello frame carrying its fingerprint, then exchanges chat,
// clear, and state frames; stream events come back as individual
// frames.
type WebSocketHandler struct {
	registry      *Registry
	limiter       *RateLimiter
	log           ConversationLogger
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket chat handler.
func NewWebSocketHandler(registry *Registry, limiter *RateLimiter, log ConversationLogger, allowedOrigin string, isDev bool) *WebSocketHandler {
	if log == nil {
		log = NoopConversationLogger{}
	}
	return &WebSocketHandler{
		registry:      registry,
		limiter:       limiter,
		log:           log,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "conversation ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	visitorID := h.resolveVisitor(ctx, r, ws)
	slog.Info("WebSocket chat connected", "visitor_id", visitorID, "ip", r.RemoteAddr)

	conv := h.registry.Get(ctx, visitorID)
	if err := h.writeJSON(ws, wsStateFrame(conv.Snapshot())); err != nil {
		slog.Debug("Failed to send initial state", "error", err, "visitor_id", visitorID)
		return
	}

	h.readLoop(ctx, ws, conv, visitorID)
	slog.Info("WebSocket chat disconnected", "visitor_id", visitorID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// resolveVisitor waits for the client's hello frame, within a bound, and
// extracts the fingerprint from it. When the hello never comes the
// identity middleware's cookie-derived ID is used instead, so a slow
// fingerprint script downgrades rather than breaks the connection.
func (h *WebSocketHandler) resolveVisitor(ctx context.Context, r *http.Request, ws *websocket.Conn) string {
	var hello atomic.Value

	readCtx, cancelRead := context.WithCancel(ctx)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_, data, err := ws.Read(readCtx)
		if err != nil {
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "hello" {
			slog.Warn("Expected hello frame, got something else")
			hello.Store("")
			return
		}
		hello.Store(msg.VisitorID)
	}()

	visitorID := identity.Resolve(ctx, func() (string, bool) {
		v, ok := hello.Load().(string)
		return v, ok
	}, identity.DefaultResolveTimeout)
	cancelRead()
	<-readDone

	if strings.HasPrefix(visitorID, "fallback-") {
		if ctxID := identity.VisitorIDFromContext(r.Context()); ctxID != "" && !strings.HasPrefix(ctxID, "fallback-") {
			return ctxID
		}
	}
	return visitorID
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, conv *Conversation, visitorID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "visitor_id", visitorID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "visitor_id", visitorID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Malformed WebSocket frame", "error", err, "visitor_id", visitorID)
			continue
		}

		switch msg.Type {
		case "chat":
			h.handleChat(ctx, ws, conv, visitorID, msg.Message)
		case "clear":
			if !conv.Clear(ctx) {
				h.send(ws, visitorID, map[string]string{"type": "rejected", "reason": "busy"})
				continue
			}
			slog.Info("Conversation cleared", "visitor_id", visitorID)
			h.send(ws, visitorID, wsStateFrame(conv.Snapshot()))
		case "state":
			h.send(ws, visitorID, wsStateFrame(conv.Snapshot()))
		case "ping":
			h.send(ws, visitorID, map[string]string{"type": "pong"})
		default:
			slog.Debug("Unknown WebSocket frame type", "type", msg.Type, "visitor_id", visitorID)
		}
	}
}

func (h *WebSocketHandler) handleChat(ctx context.Context, ws *websocket.Conn, conv *Conversation, visitorID, message string) {
	if !h.limiter.Allow(visitorID) {
		h.send(ws, visitorID, map[string]string{"type": "rejected", "reason": "rate_limited"})
		return
	}
	if strings.TrimSpace(message) == "" {
		h.send(ws, visitorID, map[string]string{"type": "rejected", "reason": "empty_message"})
		return
	}

	if conv.AwaitingLocation() {
		if conv.Submit(ctx, message, nil) {
			h.send(ws, visitorID, wsStateFrame(conv.Snapshot()))
		} else {
			h.send(ws, visitorID, map[string]string{"type": "rejected", "reason": "invalid_location"})
			h.send(ws, visitorID, wsStateFrame(conv.Snapshot()))
		}
		return
	}

	if ok, reason := conv.CanAccept(); !ok {
		h.send(ws, visitorID, map[string]string{"type": "rejected", "reason": reason})
		return
	}

	h.log.Log(ConversationLogEvent{
		VisitorID: visitorID,
		Direction: "outbound",
		EventType: "chat_user_message",
		Content:   message,
	})

	var assistantContent strings.Builder
	streamChunks := 0
	streamErrMsg := ""

	sink := func(ev StreamEvent) {
		switch ev.Type {
		case EventDelta:
			streamChunks++
			assistantContent.WriteString(ev.Text)
		case EventError:
			streamErrMsg = ev.Text
		}
		h.send(ws, visitorID, ev)
	}

	// The fold must reach its conclusion even if the socket drops
	// mid-stream; the next connection restores the finished state.
	accepted := conv.Submit(context.WithoutCancel(ctx), message, sink)
	if !accepted {
		h.send(ws, visitorID, map[string]string{"type": "rejected", "reason": "busy"})
		return
	}

	h.log.Log(ConversationLogEvent{
		VisitorID: visitorID,
		Direction: "inbound",
		EventType: "chat_assistant_message",
		Content:   assistantContent.String(),
		Meta: map[string]any{
			"stream_chunks": streamChunks,
			"stream_error":  streamErrMsg,
		},
	})

	h.send(ws, visitorID, wsDoneFrame(conv.Snapshot()))
}

type wsSnapshotFrame struct {
	Type     string   `json:"type"`
	Snapshot Snapshot `json:"snapshot"`
}

func wsStateFrame(snap Snapshot) wsSnapshotFrame {
	return wsSnapshotFrame{Type: "state", Snapshot: snap}
}

func wsDoneFrame(snap Snapshot) wsSnapshotFrame {
	return wsSnapshotFrame{Type: "done", Snapshot: snap}
}

func (h *WebSocketHandler) send(ws *websocket.Conn, visitorID string, v interface{}) {
	if err := h.writeJSON(ws, v); err != nil {
		slog.Debug("WebSocket write error", "error", err, "visitor_id", visitorID)
	}
}

func (h *WebSocketHandler) writeJSON(ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(context.Background(), websocket.MessageText, data)
}
