package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/MahdiBaghbani/labrouter-go/internal/interceptors"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/cache/memory"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/deps"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/http/realip"
)

// failingCounter fails every increment.
type failingCounter struct{}

func (failingCounter) Increment(context.Context, string, int64, time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("redis down")
}
func (failingCounter) GetCount(context.Context, string) (int64, error) { return 0, nil }
func (failingCounter) Reset(context.Context, string) error             { return nil }

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func hit(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/resolve", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestInitRegisters(t *testing.T) {
	if _, ok := interceptors.Get("ratelimit"); !ok {
		t.Fatal("expected ratelimit interceptor to be registered")
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	if c.RequestsPerWindow != 30 || c.WindowSeconds != 60 || c.KeyPrefix != "ratelimit:" {
		t.Errorf("defaults = %+v", c)
	}
	c = Config{RequestsPerWindow: 5, WindowSeconds: 10, KeyPrefix: "rl:"}
	c.ApplyDefaults()
	if c.RequestsPerWindow != 5 || c.WindowSeconds != 10 || c.KeyPrefix != "rl:" {
		t.Errorf("explicit values overwritten: %+v", c)
	}
}

func TestLimiter_BlocksOverLimit(t *testing.T) {
	mc := memory.New(time.Minute, 0)
	defer mc.Close()
	l := NewLimiter(mc, func(*http.Request) string { return "1.2.3.4" }, Config{RequestsPerWindow: 2, WindowSeconds: 30}, nil)
	h := l.Wrap(okHandler)

	for i := 1; i <= 2; i++ {
		if rec := hit(h, "1.2.3.4:1000"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}

	rec := hit(h, "1.2.3.4:1000")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	secs, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || secs < 1 || secs > 30 {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	var body struct {
		Detail     string `json:"detail"`
		ReasonCode string `json:"reason_code"`
	}
	json.NewDecoder(rec.Body).Decode(&body)
	if body.ReasonCode != "rate_limited" || body.Detail == "" {
		t.Errorf("body = %+v", body)
	}

	if n, _ := mc.GetCount(context.Background(), "ratelimit:1.2.3.4"); n != 3 {
		t.Errorf("counter = %d, want 3", n)
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	mc := memory.New(time.Minute, 0)
	defer mc.Close()
	tp := realip.NewTrustedProxies(nil)
	h := NewLimiter(mc, tp.GetClientIPString, Config{RequestsPerWindow: 1}, nil).Wrap(okHandler)

	if rec := hit(h, "10.0.0.1:1"); rec.Code != http.StatusOK {
		t.Fatalf("first client: %d", rec.Code)
	}
	if rec := hit(h, "10.0.0.2:1"); rec.Code != http.StatusOK {
		t.Fatalf("second client must have its own window: %d", rec.Code)
	}
	if rec := hit(h, "10.0.0.1:2"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("first client over limit: %d", rec.Code)
	}
}

func TestLimiter_FailsOpen(t *testing.T) {
	h := NewLimiter(failingCounter{}, func(*http.Request) string { return "k" }, Config{RequestsPerWindow: 1}, nil).Wrap(okHandler)
	for range 3 {
		if rec := hit(h, "1.1.1.1:1"); rec.Code != http.StatusOK {
			t.Fatalf("expected pass-through on counter error, got %d", rec.Code)
		}
	}
}

func TestNew_UsesSharedDeps(t *testing.T) {
	mc := memory.New(time.Minute, 0)
	defer mc.Close()
	deps.ResetDeps()
	t.Cleanup(deps.ResetDeps)
	deps.SetDeps(&deps.Deps{Cache: mc, RealIP: realip.NewTrustedProxies(nil)})

	mw, err := New(map[string]any{"requests_per_window": int64(1), "key_prefix": "rl:"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := mw(okHandler)
	hit(h, "192.0.2.7:9")
	if rec := hit(h, "192.0.2.7:9"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if n, _ := mc.GetCount(context.Background(), "rl:192.0.2.7"); n != 2 {
		t.Errorf("counter rl:192.0.2.7 = %d, want 2", n)
	}
}

func TestNew_DecodeError(t *testing.T) {
	if _, err := New(map[string]any{"window_seconds": []string{"x"}}, nil); err == nil {
		t.Error("expected decode error")
	}
}
