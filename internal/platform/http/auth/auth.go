// Package auth gates requests on the router's bearer API key.
package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MahdiBaghbani/labrouter-go/internal/components/api"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/logutil"
)

// DetailInvalidKey is the 401 detail for every rejected request.
const DetailInvalidKey = "Invalid API key"

// AuthGateConfig configures NewAuthGate.
type AuthGateConfig struct {
	// RequireAuth reports whether path is protected. Built by the server from
	// its route table and each service's Unprotected() list.
	RequireAuth func(path string) bool

	// APIKey is the expected bearer credential. Empty rejects every protected request.
	APIKey string

	// AllowSensitive logs the presented Authorization header on rejection.
	AllowSensitive bool

	Log *slog.Logger
}

// NewAuthGate returns middleware requiring "Authorization: Bearer <APIKey>".
func NewAuthGate(cfg AuthGateConfig) func(http.Handler) http.Handler {
	cfg.Log = logutil.NoopIfNil(cfg.Log)
	expected := []byte("Bearer " + cfg.APIKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAuth(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			got := r.Header.Get("Authorization")
			if cfg.APIKey == "" || subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
				log := appctx.GetLogger(r.Context())
				if cfg.AllowSensitive {
					log.Debug("rejected API key", "authorization", got)
				} else {
					log.Debug("rejected API key", "has_bearer", strings.HasPrefix(got, "Bearer "))
				}
				api.WriteUnauthorized(w, DetailInvalidKey)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
