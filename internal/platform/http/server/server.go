// Package server wires services into one chi router and runs the listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MahdiBaghbani/labrouter-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/config"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/deps"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/logutil"

	tlspkg "github.com/MahdiBaghbani/labrouter-go/internal/platform/http/tls"
)

var ErrMissingSharedDeps = errors.New("shared deps not initialized: call deps.SetDeps() before server.New()")

// Server owns the HTTP listener and the mounted services.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	logger     *slog.Logger
	services   map[string]service.Service

	// mountedServices is in mount order; Shutdown closes it in reverse.
	mountedServices []service.Service
}

// New builds the router from services (nil entries are skipped).
// deps.SetDeps must have been called.
func New(cfg *config.Config, logger *slog.Logger, services map[string]service.Service) (*Server, error) {
	logger = logutil.NoopIfNil(logger)

	if deps.GetDeps() == nil {
		return nil, ErrMissingSharedDeps
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		services: services,
	}

	s.httpServer = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: s.setupRoutes(),
		// /resolve may wait on Instruqt and the chooser in sequence.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks until the server stops. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		"addr", s.cfg.ListenAddr,
		"public_origin", s.cfg.PublicOrigin,
		"external_base_path", s.cfg.ExternalBasePath,
		"tls_mode", s.cfg.TLS.Mode,
	)

	tlsConfig, err := tlspkg.NewManager(&s.cfg.TLS, s.logger).TLSConfig()
	if err != nil {
		return fmt.Errorf("failed to configure TLS: %w", err)
	}
	if tlsConfig == nil {
		return s.httpServer.ListenAndServe()
	}

	s.httpServer.TLSConfig = tlsConfig
	return s.httpServer.ListenAndServeTLS("", "")
}

// Shutdown stops the listener, then closes services in reverse mount order.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	httpErr := s.httpServer.Shutdown(ctx)

	var closeErrs []error
	for i := len(s.mountedServices) - 1; i >= 0; i-- {
		svc := s.mountedServices[i]
		prefix := svc.Prefix()
		if prefix == "" {
			prefix = "(root)"
		}
		if err := svc.Close(); err != nil {
			s.logger.Warn("service close error", "service", prefix, "error", err)
			closeErrs = append(closeErrs, err)
			continue
		}
		s.logger.Debug("service closed", "service", prefix)
	}

	return errors.Join(append([]error{httpErr}, closeErrs...)...)
}
