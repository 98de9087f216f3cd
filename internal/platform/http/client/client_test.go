package client_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/MahdiBaghbani/labrouter-go/internal/platform/config"
	httpclient "github.com/MahdiBaghbani/labrouter-go/internal/platform/http/client"
)

func testConfig(ssrf string) *config.OutboundHTTPConfig {
	return &config.OutboundHTTPConfig{
		SSRFMode:         ssrf,
		TimeoutMS:        5000,
		ConnectTimeoutMS: 2000,
		MaxRedirects:     1,
		MaxResponseBytes: 1048576,
	}
}

func TestClient_SSRFProtection(t *testing.T) {
	client := httpclient.New(testConfig("strict"))

	tests := []struct {
		name string
		url  string
	}{
		{"localhost", "http://localhost/test"},
		{"localhost with port", "http://localhost:8000/resolve"},
		{"127.0.0.1", "http://127.0.0.1/test"},
		{"IPv6 loopback", "http://[::1]/test"},
		{"IPv6 loopback with port", "http://[::1]:8080/test"},
		{"private 192.168", "http://192.168.1.1/test"},
		{"private 10.x", "http://10.0.0.1/test"},
		{"private 172.16", "http://172.16.0.1/test"},
		{"link-local", "http://169.254.169.254/latest/meta-data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Get(context.Background(), tt.url)
			if !httpclient.IsSSRFError(err) {
				t.Errorf("expected SSRF error, got %v", err)
			}
		})
	}
}

func TestClient_SSRFOff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("local"))
	}))
	defer server.Close()

	resp, err := httpclient.New(testConfig("off")).Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("expected loopback to be reachable with ssrf off, got %v", err)
	}
	resp.Body.Close()
}

func TestIsAllowedAddr(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"8.8.8.8", true},
		{"2001:4860:4860::8888", true},
		{"127.0.0.1", false},
		{"::1", false},
		{"10.1.2.3", false},
		{"fd00::1", false},
		{"169.254.1.1", false},
		{"fe80::1", false},
		{"0.0.0.0", false},
		{"224.0.0.1", false},
		{"::ffff:127.0.0.1", false},
	}
	for _, tt := range tests {
		if got := httpclient.IsAllowedAddr(netip.MustParseAddr(tt.addr)); got != tt.want {
			t.Errorf("IsAllowedAddr(%s) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

type staticResolver struct {
	ips []net.IPAddr
	err error
}

func (s *staticResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	return s.ips, s.err
}

func TestClient_ResolvedPrivateHostBlocked(t *testing.T) {
	client := httpclient.New(testConfig("strict"))
	client.SetResolver(&staticResolver{ips: []net.IPAddr{{IP: net.ParseIP("8.8.8.8")}, {IP: net.ParseIP("10.0.0.5")}}})

	_, err := client.Get(context.Background(), "http://rebind.example/test")
	if !errors.Is(err, httpclient.ErrSSRFBlocked) {
		t.Fatalf("expected ErrSSRFBlocked, got %v", err)
	}
}

func TestClient_UnresolvableHostFailsClosed(t *testing.T) {
	client := httpclient.New(testConfig("strict"))
	client.SetResolver(&staticResolver{err: errors.New("no such host")})

	_, err := client.Get(context.Background(), "http://missing.example/test")
	if !errors.Is(err, httpclient.ErrHostUnresolvable) {
		t.Fatalf("expected ErrHostUnresolvable, got %v", err)
	}
}

type blockingResolver struct{}

func (b *blockingResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestClient_DNSHonorsContext(t *testing.T) {
	client := httpclient.New(testConfig("strict"))
	client.SetResolver(&blockingResolver{})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Get(ctx, "http://play.instruqt.example/graphql")
	if err == nil {
		t.Fatal("expected error when context expires")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("DNS lookup ignored cancellation: %v", elapsed)
	}
}

func TestClient_GetFollowsOneSameHostRedirect(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path == "/start" {
			if r.Header.Get("Authorization") == "" {
				t.Error("expected Authorization on the first hop")
			}
			http.Redirect(w, r, "/target", http.StatusFound)
			return
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("Authorization must not follow a redirect")
		}
		w.Write([]byte("reached target"))
	}))
	defer server.Close()

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL+"/start", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := httpclient.New(testConfig("off")).Do(req)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "reached target" || requests != 2 {
		t.Errorf("got body %q after %d requests", body, requests)
	}
}

func TestClient_RedirectPolicy(t *testing.T) {
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer other.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/loop":
			http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
		case "/loopx":
			http.Redirect(w, r, "/loopxx", http.StatusFound)
		case "/cross":
			http.Redirect(w, r, other.URL+"/target", http.StatusFound)
		case "/post":
			http.Redirect(w, r, "/elsewhere", http.StatusTemporaryRedirect)
		}
	}))
	defer server.Close()

	client := httpclient.New(testConfig("off"))

	tests := []struct {
		name   string
		method string
		path   string
		want   error
	}{
		{"too many", http.MethodGet, "/loop", httpclient.ErrTooManyRedirects},
		{"cross host", http.MethodGet, "/cross", httpclient.ErrRedirectNotSameHost},
		{"non-idempotent", http.MethodPost, "/post", httpclient.ErrRedirectBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequestWithContext(context.Background(), tt.method, server.URL+tt.path, strings.NewReader("{}"))
			_, err := client.Do(req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !httpclient.IsRedirectError(err) {
				t.Errorf("IsRedirectError(%v) = false", err)
			}
		})
	}
}

func TestClient_PostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("unexpected authorization %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"query":"{ ping }"}` {
			t.Errorf("unexpected body %s", body)
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer tok")
	body, resp, err := httpclient.New(testConfig("off")).PostJSON(context.Background(), server.URL, header, map[string]string{"query": "{ ping }"})
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted || string(body) != `{"ok":true}` {
		t.Errorf("got %d %s", resp.StatusCode, body)
	}
}

func TestClient_PostJSONResponseTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer server.Close()

	cfg := testConfig("off")
	cfg.MaxResponseBytes = 16
	_, _, err := httpclient.New(cfg).PostJSON(context.Background(), server.URL, nil, struct{}{})
	if !errors.Is(err, httpclient.ErrResponseTooLarge) {
		t.Fatalf("expected ErrResponseTooLarge, got %v", err)
	}
}

func TestContextClient_ImplementsHTTPClient(t *testing.T) {
	var _ httpclient.HTTPClient = httpclient.NewContextClient(httpclient.New(nil))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	cc := httpclient.NewContextClient(httpclient.New(testConfig("off")))
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := cc.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
}

func TestNewTrusted_ReachesLoopback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL, nil)
	resp, err := httpclient.NewTrusted().Do(context.Background(), req)
	if err != nil {
		t.Fatalf("trusted client must reach loopback: %v", err)
	}
	resp.Body.Close()
}
