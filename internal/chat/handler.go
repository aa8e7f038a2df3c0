package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lemmaiot/sme-consultant/internal/api"
	"github.com/lemmaiot/sme-consultant/internal/identity"
)

// maxRequestBodySize bounds chat submissions (64 KB is far beyond any
// real message).
const maxRequestBodySize = 64 << 10

// Handler exposes the conversation state machine over HTTP. Chat
// responses stream back as server-sent events on the POST itself.
type Handler struct {
	registry *Registry
	limiter  *RateLimiter
	log      ConversationLogger
}

// NewHandler creates the chat HTTP handler.
func NewHandler(registry *Registry, limiter *RateLimiter, log ConversationLogger) *Handler {
	if log == nil {
		log = NoopConversationLogger{}
	}
	return &Handler{registry: registry, limiter: limiter, log: log}
}

// RegisterRoutes registers the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Get("/state", h.handleState)
		r.Post("/", h.handleSubmit)
		r.Post("/clear", h.handleClear)
	})
}

type submitRequest struct {
	Message string `json:"message"`
}

// submitResponse is the JSON reply for non-streaming submissions
// (location capture and rejections).
type submitResponse struct {
	Accepted bool     `json:"accepted"`
	Snapshot Snapshot `json:"snapshot"`
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	conv := h.registry.Get(r.Context(), visitorID)
	api.JSON(w, http.StatusOK, conv.Snapshot())
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())

	if !h.limiter.Allow(visitorID) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	conv := h.registry.Get(r.Context(), visitorID)

	slog.Info("Chat submission",
		"visitor_id", visitorID,
		"awaiting_location", conv.AwaitingLocation(),
		"message_length", len(req.Message),
	)

	// Location capture never streams; answer with plain JSON so the
	// caller can restore the input on a rejected state name.
	if conv.AwaitingLocation() {
		accepted := conv.Submit(r.Context(), req.Message, nil)
		api.JSON(w, http.StatusOK, submitResponse{Accepted: accepted, Snapshot: conv.Snapshot()})
		return
	}

	if ok, reason := conv.CanAccept(); !ok {
		status := http.StatusConflict
		if reason == "limit_reached" {
			status = http.StatusTooManyRequests
		}
		api.Error(w, status, reason)
		return
	}

	// Stream the response via SSE.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	h.log.Log(ConversationLogEvent{
		VisitorID: visitorID,
		Direction: "outbound",
		EventType: "chat_user_message",
		Content:   req.Message,
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
		data, err := json.Marshal(ev)
		if err != nil {
			slog.Warn("Failed to marshal stream event", "error", err)
			return
		}
		if err := writeSSE(w, ev.Type, string(data)); err != nil {
			slog.Debug("Failed to write SSE event", "error", err)
			return
		}
		flusher.Flush()
	}

	// The stream runs to its natural conclusion even if the client
	// goes away; state must not depend on the connection's lifetime.
	accepted := conv.Submit(context.WithoutCancel(r.Context()), req.Message, sink)

	if !accepted {
		if err := writeSSE(w, "rejected", `{}`); err != nil {
			slog.Debug("Failed to write SSE rejected event", "error", err)
		}
		flusher.Flush()
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

	done, err := json.Marshal(conv.Snapshot())
	if err != nil {
		slog.Warn("Failed to marshal final snapshot", "error", err)
		return
	}
	if err := writeSSE(w, "done", string(done)); err != nil {
		slog.Debug("Failed to write SSE done event", "error", err)
		return
	}
	flusher.Flush()
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	conv := h.registry.Get(r.Context(), visitorID)

	if !conv.Clear(r.Context()) {
		api.Error(w, http.StatusConflict, "busy")
		return
	}

	slog.Info("Conversation cleared", "visitor_id", visitorID)
	api.JSON(w, http.StatusOK, conv.Snapshot())
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
