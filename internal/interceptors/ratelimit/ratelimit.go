// Package ratelimit is a fixed-window, per-client-IP request limiter backed by
// cache counters.
package ratelimit

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/MahdiBaghbani/labrouter-go/internal/components/api"
	svccfg "github.com/MahdiBaghbani/labrouter-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/labrouter-go/internal/interceptors"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/cache"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/deps"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/logutil"
)

func init() {
	interceptors.Register("ratelimit", New)
}

// Config is one [http.interceptors.ratelimit.profiles.<name>] table.
type Config struct {
	RequestsPerWindow int64  `mapstructure:"requests_per_window"`
	WindowSeconds     int    `mapstructure:"window_seconds"`
	KeyPrefix         string `mapstructure:"key_prefix"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.RequestsPerWindow <= 0 {
		c.RequestsPerWindow = 30
	}
	if c.WindowSeconds <= 0 {
		c.WindowSeconds = 60
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "ratelimit:"
	}
}

// Limiter counts requests per key within a fixed window.
type Limiter struct {
	counter cache.Counter
	keyFunc func(*http.Request) string
	limit   int64
	window  time.Duration
	prefix  string
	log     *slog.Logger
}

// New builds the interceptor from a profile, keyed by the shared trusted-proxy-aware client IP.
func New(conf map[string]any, log *slog.Logger) (interceptors.Middleware, error) {
	var c Config
	if err := svccfg.Decode(conf, &c); err != nil {
		return nil, err
	}
	d := deps.GetDeps()
	return NewLimiter(d.Cache, d.RealIP.GetClientIPString, c, log).Wrap, nil
}

// NewLimiter builds a limiter over any counter and key function.
func NewLimiter(counter cache.Counter, keyFunc func(*http.Request) string, c Config, log *slog.Logger) *Limiter {
	c.ApplyDefaults()
	return &Limiter{
		counter: counter,
		keyFunc: keyFunc,
		limit:   c.RequestsPerWindow,
		window:  time.Duration(c.WindowSeconds) * time.Second,
		prefix:  c.KeyPrefix,
		log:     logutil.NoopIfNil(log),
	}
}

// Wrap rejects requests over the limit with 429 and Retry-After.
// Counter failures let the request through.
func (l *Limiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count, resetAt, err := l.counter.Increment(r.Context(), l.prefix+l.keyFunc(r), 1, l.window)
		if err != nil {
			l.log.Warn("rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if count > l.limit {
			appctx.GetLogger(r.Context()).Info("rate limited", "count", count, "limit", l.limit)
			api.WriteTooManyRequests(w, time.Until(resetAt))
			return
		}
		next.ServeHTTP(w, r)
	})
}
