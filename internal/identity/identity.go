// Package identity provides anonymous per-browser visitor identity.
//
// The browser computes a fingerprint (FingerprintJS) and sends it with
// every request in the X-Visitor-ID header; a cookie backs it up so a
// visitor keeps their quota and conversation when the fingerprint script
// is blocked. When neither is available a fallback identifier embedding
// the current timestamp is synthesized — distinguishable across failures
// but not stable across reloads, which is a documented limitation.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	// VisitorHeaderName carries the browser fingerprint.
	VisitorHeaderName = "X-Visitor-ID"
	// VisitorCookieName backs the fingerprint up across requests.
	VisitorCookieName = "lemma_visitor_id"

	visitorCookieMaxAge = 365 * 24 * time.Hour

	// DefaultResolveTimeout bounds how long Resolve waits for a
	// fingerprint source to become ready.
	DefaultResolveTimeout = 5 * time.Second
	// resolvePollInterval keeps the readiness poll low-overhead.
	resolvePollInterval = 50 * time.Millisecond
)

type contextKey int

const visitorIDKey contextKey = iota

var visitorIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{8,128}$`)

// VisitorIDFromContext extracts the visitor ID from the request context.
func VisitorIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(visitorIDKey).(string); ok {
		return v
	}
	return ""
}

// WithVisitorID returns a context carrying the given visitor ID.
func WithVisitorID(ctx context.Context, visitorID string) context.Context {
	return context.WithValue(ctx, visitorIDKey, visitorID)
}

// IsValidVisitorID reports whether id looks like a fingerprint or
// fallback identifier this service accepts.
func IsValidVisitorID(id string) bool {
	return visitorIDPattern.MatchString(id)
}

// Fallback synthesizes a visitor identifier embedding the current
// timestamp. Fallback IDs are unique per failure, not stable across
// reloads.
func Fallback() string {
	return fmt.Sprintf("fallback-%d", time.Now().UnixMilli())
}

// Source reports a visitor identifier once its underlying fingerprint
// capability is ready. It returns ("", false) until then.
type Source func() (string, bool)

// Resolve polls src until it is ready or the timeout elapses, then
// returns its identifier. On timeout, cancellation, or an invalid result
// it logs and returns a fallback identifier; it never fails.
func Resolve(ctx context.Context, src Source, timeout time.Duration) string {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(resolvePollInterval)
	defer ticker.Stop()

	for {
		if id, ok := src(); ok {
			if IsValidVisitorID(id) {
				return id
			}
			slog.Warn("Fingerprint source produced an invalid visitor id, using fallback")
			return Fallback()
		}
		if time.Now().After(deadline) {
			slog.Warn("Fingerprint source not ready within timeout, using fallback", "timeout", timeout)
			return Fallback()
		}
		select {
		case <-ctx.Done():
			slog.Warn("Identity resolution cancelled, using fallback", "error", ctx.Err())
			return Fallback()
		case <-ticker.C:
		}
	}
}

// FromRequest extracts a visitor ID from the fingerprint header or the
// backup cookie. It returns false when neither carries a valid ID.
func FromRequest(r *http.Request) (string, bool) {
	if id := strings.TrimSpace(r.Header.Get(VisitorHeaderName)); IsValidVisitorID(id) {
		return id, true
	}
	if c, err := r.Cookie(VisitorCookieName); err == nil && IsValidVisitorID(c.Value) {
		return c.Value, true
	}
	return "", false
}

func setVisitorCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     VisitorCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(visitorCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(visitorCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// Middleware injects the visitor identity into the request context and
// refreshes the backup cookie.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			visitorID, ok := FromRequest(r)
			if !ok {
				visitorID = Fallback()
				slog.Warn("Request carried no usable visitor id, issued fallback", "visitor_id", visitorID)
			}
			setVisitorCookie(w, visitorID, isDev)

			next.ServeHTTP(w, r.WithContext(WithVisitorID(r.Context(), visitorID)))
		})
	}
}
