// Package service defines the pluggable HTTP services mounted by the server.
package service

import (
	"log/slog"
	"net/http"
)

// Service is an HTTP surface mounted under <base>/<Prefix()>.
type Service interface {
	Handler() http.Handler

	// Prefix is the mount point relative to the external base path.
	// An empty prefix mounts the service at the base path itself.
	Prefix() string

	// Unprotected lists sub-paths that skip bearer authentication.
	Unprotected() []string

	Close() error
}

// NewService builds a service from its [http.services.<name>] table.
type NewService func(conf map[string]any, log *slog.Logger) (Service, error)
