// Package identity resolves the optional wallet identity and tab session of a request.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/ashureev/defi-assistant/internal/domain"
)

const (
	WalletHeaderName      = "X-Wallet-Address"
	SessionHeaderName     = "X-Session-ID"
	AddressQueryParam     = "address"
	DefaultSessionIDValue = "default"
)

type contextKey int

const (
	addressKey contextKey = iota
	sessionIDKey
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// AddressFromContext returns the normalized wallet address, or "" for anonymous requests.
func AddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(addressKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext extracts the tab session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionIDValue
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

// AddressFromRequest reads the wallet header, falling back to the address
// query parameter. Returns "" when neither holds a valid address.
func AddressFromRequest(r *http.Request) string {
	if addr := domain.NormalizeAddress(r.Header.Get(WalletHeaderName)); addr != "" {
		return addr
	}
	return domain.NormalizeAddress(r.URL.Query().Get(AddressQueryParam))
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return sanitizeSessionID(sid)
}

// Middleware injects the optional wallet identity and per-request session ID.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), addressKey, AddressFromRequest(r))
		ctx = context.WithValue(ctx, sessionIDKey, sessionIDFromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
