package server

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/labrouter-go/internal/components/api"
	"github.com/MahdiBaghbani/labrouter-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/deps"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/http/auth"
	httpmw "github.com/MahdiBaghbani/labrouter-go/internal/platform/http/middleware"
)

// RouteGroup is a path prefix under the base path with a fixed auth decision.
type RouteGroup struct {
	Name         string
	PathPrefix   string
	RequiresAuth bool
}

// routeGroups lists the prefixes whose auth decision does not depend on a
// service's Unprotected list. Anything not matched requires the API key.
var routeGroups = []RouteGroup{
	{Name: "ui", PathPrefix: "/ui", RequiresAuth: false},
	{Name: "health", PathPrefix: "/health", RequiresAuth: false},
}

// GetRouteGroups returns the route table.
func GetRouteGroups() []RouteGroup {
	return routeGroups
}

// IsAuthRequired reports whether path needs the bearer API key.
func IsAuthRequired(path, basePath string, mountedServices []service.Service) bool {
	// Root redirect to the form.
	if path == basePath || path == basePath+"/" {
		return false
	}

	for _, svc := range mountedServices {
		if svc == nil {
			continue
		}
		svcBase := basePath
		if p := svc.Prefix(); p != "" {
			svcBase += "/" + p
		}
		for _, unprotected := range svc.Unprotected() {
			if pathMatchesPrefix(path, svcBase+unprotected) {
				return false
			}
		}
	}

	for _, rg := range routeGroups {
		if pathMatchesPrefix(path, basePath+rg.PathPrefix) {
			return rg.RequiresAuth
		}
	}

	return true
}

// pathMatchesPrefix reports whether path equals prefix or lies below it.
func pathMatchesPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix) && path[len(prefix)] == '/'
}

// mountOrder returns core services first, then any others by name.
func mountOrder(services map[string]service.Service) []string {
	var names, extra []string
	for _, name := range service.CoreServices {
		if _, ok := services[name]; ok {
			names = append(names, name)
		}
	}
	for name := range services {
		if !slices.Contains(service.CoreServices, name) {
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)
	return append(names, extra...)
}

func (s *Server) mountService(r chi.Router, svc service.Service) {
	if svc == nil {
		return
	}
	if prefix := svc.Prefix(); prefix == "" {
		r.Mount("/", svc.Handler())
	} else {
		r.Mount("/"+prefix, svc.Handler())
	}
	s.mountedServices = append(s.mountedServices, svc)
}

// setupRoutes builds the router. Middleware order is fixed:
// RequestID, request logger, access log, recover, auth gate.
func (s *Server) setupRoutes() chi.Router {
	d := deps.GetDeps()
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(httpmw.RequestLogger(s.logger, d.RealIP))
	r.Use(httpmw.AccessLog(s.logger, d.RealIP))
	r.Use(httpmw.Recover(api.WriteInternalError))

	// mountedServices is read per request, after mounting below.
	requireAuth := func(path string) bool {
		return IsAuthRequired(path, s.cfg.ExternalBasePath, s.mountedServices)
	}
	r.Use(auth.NewAuthGate(auth.AuthGateConfig{
		RequireAuth:    requireAuth,
		APIKey:         s.cfg.Router.APIKey,
		AllowSensitive: s.cfg.Logging.AllowSensitive,
		Log:            s.logger,
	}))

	if s.cfg.ExternalBasePath != "" {
		r.Route(s.cfg.ExternalBasePath, s.mountAppEndpoints)
	} else {
		s.mountAppEndpoints(r)
	}

	return r
}

func (s *Server) mountAppEndpoints(r chi.Router) {
	uiPath := s.cfg.ExternalBasePath + "/ui/"
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, uiPath, http.StatusFound)
	})

	for _, name := range mountOrder(s.services) {
		s.mountService(r, s.services[name])
	}
}
