// Package interceptors is the registry of named, configurable HTTP middleware
// that services opt into from their own config.
package interceptors

import (
	"log/slog"
	"net/http"
)

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// NewInterceptor builds a Middleware from a profile table.
type NewInterceptor func(conf map[string]any, log *slog.Logger) (Middleware, error)
