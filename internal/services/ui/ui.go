// Package ui provides the /ui/ form as a registry service.
package ui

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/labrouter-go/internal/components/labform"
	"github.com/MahdiBaghbani/labrouter-go/internal/components/ui"
	"github.com/MahdiBaghbani/labrouter-go/internal/frameworks/service"
	svccfg "github.com/MahdiBaghbani/labrouter-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/deps"
	httpclient "github.com/MahdiBaghbani/labrouter-go/internal/platform/http/client"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/http/realip"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/logutil"
)

func init() {
	service.MustRegister("ui", New)
}

// Config holds ui service configuration.
type Config struct {
	// BackendURL is where the form posts /resolve. Defaults to this server's
	// public origin plus base path.
	BackendURL string `mapstructure:"backend_url"`
	Title      string `mapstructure:"title"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.Title == "" {
		c.Title = ui.DefaultTitle
	}
}

// Service is the UI service.
type Service struct {
	router chi.Router
	conf   *Config
	log    *slog.Logger
}

// New creates the UI service.
func New(m map[string]any, log *slog.Logger) (service.Service, error) {
	log = logutil.NoopIfNil(log)

	var c Config
	unused, err := svccfg.DecodeWithUnused(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "ui", "unused_keys", unused)
	}

	d := deps.GetDeps()
	if d == nil {
		return nil, errors.New("shared deps not initialized")
	}

	basePath := ""
	if d.Config != nil {
		basePath = d.Config.ExternalBasePath
		if c.BackendURL == "" {
			c.BackendURL = d.Config.BackendURL()
		}
	}
	if c.BackendURL == "" {
		return nil, errors.New("ui: backend_url is required when public_origin is unset")
	}

	// The backend is operator-configured: no SSRF checks.
	outbound := httpclient.NewTrusted()
	resolverFor := func(r *http.Request) labform.Resolver {
		var h httpclient.HTTPClient = outbound
		if d.RealIP != nil {
			// /resolve rate limits per caller, not per form server.
			h = realip.Forwarding(outbound, d.RealIP.GetClientIPString(r))
		}
		return labform.NewClient(c.BackendURL, h)
	}
	uiHandler, err := ui.NewRequestHandler(c.Title, basePath+"/ui/", resolverFor)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Get("/", uiHandler.Form)
	r.Post("/", uiHandler.Submit)

	log.Info("form enabled", "path", basePath+"/ui/", "backend_url", c.BackendURL)

	return &Service{router: r, conf: &c, log: log}, nil
}

// Handler returns the service's HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string {
	return "ui"
}

// Unprotected returns nil: the whole /ui group is public in the route table.
func (s *Service) Unprotected() []string {
	return nil
}

// Close releases any resources held by the service.
func (s *Service) Close() error {
	return nil
}
