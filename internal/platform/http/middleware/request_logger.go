// Package middleware provides always-on transport middleware for HTTP servers.
package middleware

import (
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/labrouter-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/http/realip"
)

// RequestLogger attaches a request-scoped logger to the request context.
// Must run after chi's RequestID so the request_id field is populated.
func RequestLogger(base *slog.Logger, trustedProxies *realip.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := appctx.WithLogger(r.Context(), requestFields(base, r, trustedProxies))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestFields returns base enriched with request_id, method, path (no query) and client_ip.
func requestFields(base *slog.Logger, r *http.Request, trustedProxies *realip.TrustedProxies) *slog.Logger {
	clientIP := "unknown"
	if trustedProxies != nil {
		clientIP = trustedProxies.GetClientIPString(r)
	}
	return base.With(
		"request_id", chimw.GetReqID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"client_ip", clientIP,
	)
}
