// Package api provides the lab router's JSON endpoints as a registry service.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/labrouter-go/internal/components/api"
	"github.com/MahdiBaghbani/labrouter-go/internal/components/labs"
	"github.com/MahdiBaghbani/labrouter-go/internal/frameworks/service"
	svccfg "github.com/MahdiBaghbani/labrouter-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/labrouter-go/internal/interceptors"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/deps"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/logutil"

	_ "github.com/MahdiBaghbani/labrouter-go/internal/interceptors/ratelimit"
)

func init() {
	service.MustRegister("api", New)
}

// Config holds api service configuration.
type Config struct {
	Ratelimit RatelimitConfig `mapstructure:"ratelimit"`
}

// RatelimitConfig selects the /resolve limit.
type RatelimitConfig struct {
	// Profile names [http.interceptors.ratelimit.profiles.<name>]. Empty uses
	// the interceptor defaults.
	Profile string `mapstructure:"profile"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {}

// Service is the API service.
type Service struct {
	router chi.Router
	conf   *Config
	log    *slog.Logger
}

// New creates the API service.
func New(m map[string]any, log *slog.Logger) (service.Service, error) {
	log = logutil.NoopIfNil(log)

	var c Config
	unused, err := svccfg.DecodeWithUnused(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "api", "unused_keys", unused)
	}

	d := deps.GetDeps()
	if d == nil {
		return nil, errors.New("shared deps not initialized")
	}
	if d.Labs == nil || d.Resolver == nil {
		return nil, errors.New("api: instruqt client and resolver are required")
	}

	limit, err := resolveLimiter(d, c.Ratelimit.Profile, log)
	if err != nil {
		return nil, err
	}

	h := labs.NewHandler(d.Labs, d.Resolver, d.Ledger, log)

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		api.WriteNotFound(w, api.ReasonNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		api.WriteError(w, http.StatusMethodNotAllowed, api.ReasonInvalidBody, "Method Not Allowed")
	})

	r.Get("/health", api.HealthHandler)
	r.Get("/tracks", h.HandleTracks)
	r.Post("/invite", h.HandleInvite)
	r.With(limit).Post("/resolve", h.HandleResolve)
	r.Get("/invites", h.HandleList)

	return &Service{router: r, conf: &c, log: log}, nil
}

// resolveLimiter builds the ratelimit interceptor for /resolve.
func resolveLimiter(d *deps.Deps, profile string, log *slog.Logger) (func(http.Handler) http.Handler, error) {
	var conf map[string]any
	if profile != "" {
		if d.Config == nil {
			return nil, errors.New("api: ratelimit profile set but config missing")
		}
		pc, err := interceptors.GetProfileConfig(d.Config.HTTP.Interceptors, "ratelimit", profile)
		if err != nil {
			return nil, fmt.Errorf("api: %w", err)
		}
		conf = pc
	}
	if d.Cache == nil || d.RealIP == nil {
		return nil, errors.New("api: rate limiting needs the shared cache and trusted proxies")
	}

	newInterceptor, ok := interceptors.Get("ratelimit")
	if !ok {
		return nil, errors.New("api: ratelimit interceptor not registered")
	}
	mw, err := newInterceptor(conf, log)
	if err != nil {
		return nil, fmt.Errorf("api: failed to create ratelimit interceptor: %w", err)
	}
	return mw, nil
}

// Handler returns the service's HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Prefix mounts the API at the base path itself.
func (s *Service) Prefix() string {
	return ""
}

// Unprotected returns paths that skip the API key.
func (s *Service) Unprotected() []string {
	return []string{"/health"}
}

// Close releases any resources held by the service.
func (s *Service) Close() error {
	return nil
}
