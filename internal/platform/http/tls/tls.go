// Package tls builds the listener TLS configuration.
package tls

import (
	cryptotls "crypto/tls"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MahdiBaghbani/labrouter-go/internal/platform/config"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/logutil"
)

var (
	ErrInvalidTLSMode = errors.New("invalid TLS mode")
	ErrMissingCert    = errors.New("missing certificate or key file")
)

// Manager turns a TLSConfig into a *tls.Config.
type Manager struct {
	cfg *config.TLSConfig
	log *slog.Logger
}

func NewManager(cfg *config.TLSConfig, log *slog.Logger) *Manager {
	return &Manager{cfg: cfg, log: logutil.NoopIfNil(log)}
}

// TLSConfig returns nil for mode "off".
func (m *Manager) TLSConfig() (*cryptotls.Config, error) {
	switch m.cfg.Mode {
	case "", "off":
		return nil, nil
	case "static":
		return m.loadStatic()
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidTLSMode, m.cfg.Mode)
	}
}

func (m *Manager) loadStatic() (*cryptotls.Config, error) {
	if m.cfg.CertFile == "" || m.cfg.KeyFile == "" {
		return nil, ErrMissingCert
	}

	cert, err := cryptotls.LoadX509KeyPair(m.cfg.CertFile, m.cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	m.log.Info("loaded static TLS certificate", "cert_file", m.cfg.CertFile)

	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{cert},
		MinVersion:   cryptotls.VersionTLS12,
	}, nil
}
