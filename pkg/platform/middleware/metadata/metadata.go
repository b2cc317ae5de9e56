// Package metadata records where a request came from: client IP, User-Agent
// and the platform parsed from it.
package metadata

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"agentauth/pkg/requestcontext"
)

// Platform values recorded for the caller.
const (
	PlatformAPI     = "api"
	PlatformBot     = "bot"
	PlatformMobile  = "mobile"
	PlatformDesktop = "desktop"
)

// ClientMetadata extracts client IP address and User-Agent from the request
// and adds them to the context for use by handlers and services.
// This middleware should be applied early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), ua, PlatformOf(ua))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PlatformOf classifies a User-Agent. Agents calling with an SDK or a bare
// HTTP client have no browser engine and land on "api".
func PlatformOf(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return PlatformAPI
	}
	ua := useragent.New(userAgent)
	switch {
	case ua.Bot():
		return PlatformBot
	case ua.Mobile():
		return PlatformMobile
	}
	if engine, _ := ua.Engine(); engine == "" {
		return PlatformAPI
	}
	return PlatformDesktop
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
