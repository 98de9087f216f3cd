// Package deps holds the dependencies every service shares, built once at startup.
package deps

import (
	"sync"

	"github.com/MahdiBaghbani/labrouter-go/internal/components/instruqt"
	"github.com/MahdiBaghbani/labrouter-go/internal/components/resolver"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/cache"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/config"
	httpclient "github.com/MahdiBaghbani/labrouter-go/internal/platform/http/client"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/http/realip"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/store"
)

var (
	sharedDeps     *Deps
	sharedDepsOnce sync.Once
)

// Deps is the startup-built dependency set.
type Deps struct {
	Config *config.Config

	// Cache backs the track list and rate-limit counters.
	Cache cache.CacheWithCounter

	// Ledger records issued invites.
	Ledger store.InviteLedger

	// RealIP is the single source of client identity for logs and rate limiting.
	RealIP *realip.TrustedProxies

	// HTTPClient is the SSRF-guarded outbound client.
	HTTPClient *httpclient.Client

	Labs     *instruqt.Client
	Resolver *resolver.Resolver
}

// SetDeps installs d. Later calls are ignored until ResetDeps.
func SetDeps(d *Deps) {
	sharedDepsOnce.Do(func() {
		sharedDeps = d
	})
}

// GetDeps returns the installed deps, or nil before SetDeps.
func GetDeps() *Deps {
	return sharedDeps
}

// ResetDeps clears the singleton. Tests only.
func ResetDeps() {
	sharedDeps = nil
	sharedDepsOnce = sync.Once{}
}
