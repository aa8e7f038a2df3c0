package chat

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lemmaiot/sme-consultant/internal/consultant"
	"github.com/lemmaiot/sme-consultant/internal/identity"
)

func newTestRouter(t *testing.T, streamer consultant.Streamer, rateLimit int) http.Handler {
	t.Helper()
	reg := NewRegistry(newFakeRepo(), streamer, 20)
	h := NewHandler(reg, NewRateLimiter(rateLimit, time.Minute), NoopConversationLogger{})

	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	h.RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(identity.VisitorHeaderName, "visitor-abc123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStateEndpoint(t *testing.T) {
	router := newTestRouter(t, &fakeStreamer{}, 100)

	w := doJSON(t, router, http.MethodGet, "/api/chat/state", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var snap Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if snap.Phase != "awaiting_location" {
		t.Errorf("Expected awaiting_location phase, got %q", snap.Phase)
	}
	if len(snap.Messages) != 1 {
		t.Errorf("Expected the location greeting, got %d messages", len(snap.Messages))
	}
}

func TestSubmitLocationReturnsJSON(t *testing.T) {
	router := newTestRouter(t, &fakeStreamer{}, 100)

	w := doJSON(t, router, http.MethodPost, "/api/chat", submitRequest{Message: "lagos"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Location capture should answer JSON, got %q", ct)
	}

	var resp submitResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Accepted {
		t.Error("Valid state should have been accepted")
	}
	if resp.Snapshot.Location != "Lagos" {
		t.Errorf("Expected canonical location, got %q", resp.Snapshot.Location)
	}
}

func TestSubmitLocationRejection(t *testing.T) {
	router := newTestRouter(t, &fakeStreamer{}, 100)

	w := doJSON(t, router, http.MethodPost, "/api/chat", submitRequest{Message: "Atlantis"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp submitResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Accepted {
		t.Error("Unknown state should have been rejected")
	}
	if resp.Snapshot.LocationError == "" {
		t.Error("Rejection should carry the location error copy")
	}
}

func TestSubmitStreamsSSE(t *testing.T) {
	streamer := &fakeStreamer{steps: []step{
		{frag: consultant.Fragment{Text: "Start with "}},
		{frag: consultant.Fragment{Text: "Paystack."}},
	}}
	router := newTestRouter(t, streamer, 100)

	doJSON(t, router, http.MethodPost, "/api/chat", submitRequest{Message: "Lagos"})
	w := doJSON(t, router, http.MethodPost, "/api/chat", submitRequest{Message: "How do I take card payments?"})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected SSE content type, got %q", ct)
	}

	body := w.Body.String()
	if !strings.Contains(body, "event: delta") {
		t.Errorf("Expected delta events in body:\n%s", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Errorf("Expected terminal done event in body:\n%s", body)
	}
	if !strings.Contains(body, "Paystack.") {
		t.Errorf("Expected streamed text in body:\n%s", body)
	}
}

func TestSubmitEmptyMessage(t *testing.T) {
	router := newTestRouter(t, &fakeStreamer{}, 100)

	w := doJSON(t, router, http.MethodPost, "/api/chat", submitRequest{Message: "   "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestSubmitRateLimited(t *testing.T) {
	router := newTestRouter(t, &fakeStreamer{}, 1)

	doJSON(t, router, http.MethodPost, "/api/chat", submitRequest{Message: "Lagos"})
	w := doJSON(t, router, http.MethodPost, "/api/chat", submitRequest{Message: "hello"})
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", w.Code)
	}
}

func TestSubmitPastDailyLimit(t *testing.T) {
	streamer := &fakeStreamer{steps: []step{{frag: consultant.Fragment{Text: "ok"}}}}
	reg := NewRegistry(newFakeRepo(), streamer, 1)
	h := NewHandler(reg, NewRateLimiter(100, time.Minute), NoopConversationLogger{})
	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	h.RegisterRoutes(r)

	doJSON(t, r, http.MethodPost, "/api/chat", submitRequest{Message: "Lagos"})
	doJSON(t, r, http.MethodPost, "/api/chat", submitRequest{Message: "first question"})

	w := doJSON(t, r, http.MethodPost, "/api/chat", submitRequest{Message: "second question"})
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429 past the daily limit, got %d", w.Code)
	}
	var got map[string]string
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	if got["error"] != "limit_reached" {
		t.Errorf("Expected limit_reached reason, got %q", got["error"])
	}
}

func TestClearEndpoint(t *testing.T) {
	router := newTestRouter(t, &fakeStreamer{}, 100)

	doJSON(t, router, http.MethodPost, "/api/chat", submitRequest{Message: "Lagos"})
	w := doJSON(t, router, http.MethodPost, "/api/chat/clear", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var snap Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if snap.Phase != "awaiting_location" {
		t.Errorf("Clear should return to location capture, got %q", snap.Phase)
	}
}

func TestInvalidBody(t *testing.T) {
	router := newTestRouter(t, &fakeStreamer{}, 100)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{not json"))
	req.Header.Set(identity.VisitorHeaderName, "visitor-abc123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}
