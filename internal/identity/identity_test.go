package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestResolveReturnsReadySourceValue(t *testing.T) {
	got := Resolve(context.Background(), func() (string, bool) {
		return "fp-1234567890abcdef", true
	}, time.Second)
	if got != "fp-1234567890abcdef" {
		t.Fatalf("expected source value, got %q", got)
	}
}

func TestResolveWaitsForLateSource(t *testing.T) {
	var ready atomic.Bool
	time.AfterFunc(120*time.Millisecond, func() { ready.Store(true) })

	got := Resolve(context.Background(), func() (string, bool) {
		if !ready.Load() {
			return "", false
		}
		return "fp-late-1234567890", true
	}, 2*time.Second)
	if got != "fp-late-1234567890" {
		t.Fatalf("expected late source value, got %q", got)
	}
}

func TestResolveFallsBackOnTimeout(t *testing.T) {
	start := time.Now()
	got := Resolve(context.Background(), func() (string, bool) {
		return "", false
	}, 150*time.Millisecond)

	if !strings.HasPrefix(got, "fallback-") {
		t.Fatalf("expected fallback id, got %q", got)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("resolve did not respect timeout, took %v", elapsed)
	}
}

func TestFallbackIDsAreDistinguishable(t *testing.T) {
	a := Fallback()
	time.Sleep(2 * time.Millisecond)
	b := Fallback()
	if a == b {
		t.Fatalf("expected distinct fallback ids, got %q twice", a)
	}
	if !IsValidVisitorID(a) {
		t.Fatalf("fallback id %q should validate", a)
	}
}

func TestMiddlewarePrefersHeaderOverCookie(t *testing.T) {
	var seen string
	h := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = VisitorIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/chat/state", nil)
	req.Header.Set(VisitorHeaderName, "fp-header-12345678")
	req.AddCookie(&http.Cookie{Name: VisitorCookieName, Value: "fp-cookie-12345678"})

	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "fp-header-12345678" {
		t.Fatalf("expected header id, got %q", seen)
	}
}

func TestMiddlewareIssuesFallbackAndCookie(t *testing.T) {
	var seen string
	h := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = VisitorIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.HasPrefix(seen, "fallback-") {
		t.Fatalf("expected fallback id, got %q", seen)
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == VisitorCookieName {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value != seen {
		t.Fatalf("expected backup cookie %q, got %+v", seen, cookie)
	}
}

func TestMiddlewareRejectsMalformedHeader(t *testing.T) {
	var seen string
	h := Middleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = VisitorIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(VisitorHeaderName, "bad id with spaces")

	h.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.HasPrefix(seen, "fallback-") {
		t.Fatalf("expected fallback for malformed header, got %q", seen)
	}
}
