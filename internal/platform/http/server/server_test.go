package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/labrouter-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/config"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/deps"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/http/realip"
)

// trackingService records Close calls.
type trackingService struct {
	name        string
	prefix      string
	handler     http.Handler
	unprotected []string
	closeOrder  *[]string
	closeErr    error
}

func (t *trackingService) Handler() http.Handler {
	if t.handler == nil {
		return http.NotFoundHandler()
	}
	return t.handler
}
func (t *trackingService) Prefix() string        { return t.prefix }
func (t *trackingService) Unprotected() []string { return t.unprotected }
func (t *trackingService) Close() error {
	if t.closeOrder != nil {
		*t.closeOrder = append(*t.closeOrder, t.name)
	}
	return t.closeErr
}

var _ service.Service = (*trackingService)(nil)

func setupTestSharedDeps(t *testing.T) {
	t.Helper()
	deps.ResetDeps()
	deps.SetDeps(&deps.Deps{RealIP: realip.NewTrustedProxies(nil)})
	t.Cleanup(deps.ResetDeps)
}

func testConfig(basePath string) *config.Config {
	cfg := config.DevConfig()
	cfg.ExternalBasePath = basePath
	cfg.Router.APIKey = "secret-key"
	return cfg
}

func apiStub() *trackingService {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	r.Get("/tracks", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("tracks")) })
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })
	return &trackingService{name: "api", handler: r, unprotected: []string{"/health"}}
}

func uiStub() *trackingService {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("form")) })
	return &trackingService{name: "ui", prefix: "ui", handler: r}
}

func TestNew_FailsWithNilSharedDeps(t *testing.T) {
	deps.ResetDeps()
	defer deps.ResetDeps()

	_, err := New(testConfig(""), nil, nil)
	if !errors.Is(err, ErrMissingSharedDeps) {
		t.Errorf("expected ErrMissingSharedDeps, got: %v", err)
	}
}

func TestRouting(t *testing.T) {
	for _, base := range []string{"", "/router"} {
		t.Run("base="+base, func(t *testing.T) {
			setupTestSharedDeps(t)
			srv, err := New(testConfig(base), nil, map[string]service.Service{"api": apiStub(), "ui": uiStub()})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			h := srv.Handler()

			tests := []struct {
				name     string
				path     string
				auth     string
				wantCode int
				wantBody string
			}{
				{"health is public", base + "/health", "", http.StatusOK, "ok"},
				{"form is public", base + "/ui/", "", http.StatusOK, "form"},
				{"tracks needs key", base + "/tracks", "", http.StatusUnauthorized, ""},
				{"wrong key", base + "/tracks", "Bearer nope", http.StatusUnauthorized, ""},
				{"right key", base + "/tracks", "Bearer secret-key", http.StatusOK, "tracks"},
				{"unknown path needs key", base + "/elsewhere", "", http.StatusUnauthorized, ""},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					req := httptest.NewRequest(http.MethodGet, tt.path, nil)
					if tt.auth != "" {
						req.Header.Set("Authorization", tt.auth)
					}
					rec := httptest.NewRecorder()
					h.ServeHTTP(rec, req)
					if rec.Code != tt.wantCode {
						t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
					}
					if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
						t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
					}
					if rec.Code == http.StatusUnauthorized {
						var body map[string]string
						json.NewDecoder(rec.Body).Decode(&body)
						if body["detail"] != "Invalid API key" {
							t.Errorf("401 body = %v", body)
						}
					}
				})
			}
		})
	}
}

func TestRootRedirectsToForm(t *testing.T) {
	setupTestSharedDeps(t)
	srv, err := New(testConfig("/router"), nil, map[string]service.Service{"api": apiStub(), "ui": uiStub()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/router/", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/router/ui/" {
		t.Errorf("Location = %q", loc)
	}
}

func TestPanicRecoveredAsJSON(t *testing.T) {
	setupTestSharedDeps(t)
	srv, err := New(testConfig(""), nil, map[string]service.Service{"api": apiStub()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["reason_code"] != "internal_error" {
		t.Errorf("body = %v", body)
	}
}

func TestEmptyAPIKeyRejectsProtectedRoutes(t *testing.T) {
	setupTestSharedDeps(t)
	cfg := testConfig("")
	cfg.Router.APIKey = ""
	srv, err := New(cfg, nil, map[string]service.Service{"api": apiStub()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, auth := range []string{"", "Bearer "} {
		req := httptest.NewRequest(http.MethodGet, "/tracks", nil)
		req.Header.Set("Authorization", auth)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("auth %q: status = %d, want 401", auth, rec.Code)
		}
	}
}

func TestIsAuthRequired(t *testing.T) {
	svcs := []service.Service{apiStub(), uiStub()}
	tests := []struct {
		path string
		base string
		want bool
	}{
		{"/", "", false},
		{"/health", "", false},
		{"/healthz", "", true},
		{"/ui", "", false},
		{"/ui/", "", false},
		{"/resolve", "", true},
		{"/invites", "", true},
		{"/router", "/router", false},
		{"/router/health", "/router", false},
		{"/health", "/router", true},
		{"/router/resolve", "/router", true},
	}
	for _, tt := range tests {
		if got := IsAuthRequired(tt.path, tt.base, svcs); got != tt.want {
			t.Errorf("IsAuthRequired(%q, %q) = %v, want %v", tt.path, tt.base, got, tt.want)
		}
	}
}

func TestShutdown_ClosesServicesInReverseOrder(t *testing.T) {
	setupTestSharedDeps(t)

	var closeOrder []string
	closeErr := errors.New("close failed")
	srv, err := New(testConfig(""), nil, map[string]service.Service{
		"extra": &trackingService{name: "extra", prefix: "extra", closeOrder: &closeOrder},
		"ui":    &trackingService{name: "ui", prefix: "ui", closeOrder: &closeOrder, closeErr: closeErr},
		"api":   &trackingService{name: "api", closeOrder: &closeOrder},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = srv.Shutdown(context.Background())
	if !errors.Is(err, closeErr) {
		t.Errorf("Shutdown error = %v, want it to carry the close failure", err)
	}

	expected := []string{"extra", "ui", "api"}
	if len(closeOrder) != len(expected) {
		t.Fatalf("closed %v, want %v", closeOrder, expected)
	}
	for i, name := range expected {
		if closeOrder[i] != name {
			t.Errorf("close order[%d] = %q, want %q", i, closeOrder[i], name)
		}
	}
}

func TestStart_RejectsBadTLS(t *testing.T) {
	setupTestSharedDeps(t)
	cfg := testConfig("")
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.TLS.Mode = "static"
	srv, err := New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := srv.Start(); err == nil {
		t.Error("expected TLS configuration error")
	}
}
