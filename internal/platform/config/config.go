// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Config holds the server configuration.
type Config struct {
	// Mode is the operating mode: strict or dev.
	Mode string `toml:"mode"`

	// PublicOrigin is the public origin (scheme + host + port) for this instance.
	// Example: "https://labs.example.com"
	PublicOrigin string `toml:"public_origin"`

	// ExternalBasePath is the optional path prefix for every endpoint.
	// Example: "/router" or empty string
	ExternalBasePath string `toml:"external_base_path"`

	// ListenAddr is the address to listen on.
	// Example: ":8000"
	ListenAddr string `toml:"listen_addr"`

	// Server holds server-level settings.
	Server ServerConfig `toml:"server"`

	// TLS configuration
	TLS TLSConfig `toml:"tls"`

	// OutboundHTTP configuration
	OutboundHTTP OutboundHTTPConfig `toml:"outbound_http"`

	// Router holds the inbound API key.
	Router RouterConfig `toml:"router"`

	// Instruqt holds the GraphQL upstream settings.
	Instruqt InstruqtConfig `toml:"instruqt"`

	// OpenAI holds the LLM fallback settings.
	OpenAI OpenAIConfig `toml:"openai"`

	// Resolver holds prompt matching rules.
	Resolver ResolverConfig `toml:"resolver"`

	// Cache configuration
	Cache CacheConfig `toml:"cache"`

	// Store configuration (invite ledger)
	Store StoreConfig `toml:"store"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`

	// HTTP holds per-service HTTP configuration.
	HTTP HTTPConfig `toml:"http"`
}

// HTTPConfig holds per-service HTTP configuration.
// Services are configured under [http.services.<svcname>].
// Interceptors are configured under [http.interceptors.<name>].
type HTTPConfig struct {
	Services     map[string]map[string]any `toml:"services"`
	Interceptors map[string]map[string]any `toml:"interceptors"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `toml:"level"`

	// AllowSensitive permits logging of sensitive values (tokens, prompts).
	AllowSensitive bool `toml:"allow_sensitive"`
}

// RouterConfig holds the bearer key clients must present.
type RouterConfig struct {
	APIKey string `toml:"api_key"`
}

// InstruqtConfig holds Instruqt GraphQL settings.
type InstruqtConfig struct {
	APIToken string `toml:"api_token"`
	APIURL   string `toml:"api_url"`
	TeamSlug string `toml:"team_slug"`

	// InviteBaseURL prefixes generated invite links.
	InviteBaseURL string `toml:"invite_base_url"`

	// TracksCacheTTLSeconds bounds how long the track list is reused.
	TracksCacheTTLSeconds int `toml:"tracks_cache_ttl_seconds"`
}

// OpenAIConfig holds chooser settings. An empty APIKey disables the fallback.
type OpenAIConfig struct {
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	BaseURL string `toml:"base_url"`

	// MenuSize caps how many tracks are offered to the model.
	MenuSize int `toml:"menu_size"`
}

// ResolverConfig holds the intent map. An empty list keeps the built-in map.
type ResolverConfig struct {
	Intents []IntentConfig `toml:"intents"`
}

// IntentConfig is one [[resolver.intents]] entry: every keyword must appear in the prompt.
type IntentConfig struct {
	Keywords []string `toml:"keywords"`
	Slug     string   `toml:"slug"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver is the cache driver name: "memory" (default) or "redis".
	Driver string `toml:"driver"`

	// Drivers holds per-driver configuration.
	// Example: [cache.drivers.redis] addr = "localhost:6379"
	Drivers map[string]any `toml:"drivers"`
}

// StoreConfig holds invite ledger settings.
type StoreConfig struct {
	// Driver is "memory" (default) or "sqlite".
	Driver string `toml:"driver"`

	// Drivers holds per-driver configuration.
	// Example: [store.drivers.sqlite] path = "labrouter.db"
	Drivers map[string]any `toml:"drivers"`
}

// ServerConfig holds server-level settings.
type ServerConfig struct {
	// TrustedProxies is a list of CIDR ranges for trusted reverse proxies.
	// Forwarded client addresses are only honored from these peers.
	TrustedProxies []string `toml:"trusted_proxies"`
}

// TLSConfig holds TLS-related settings.
type TLSConfig struct {
	// Mode is one of: off, static
	Mode string `toml:"mode"`

	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
}

// OutboundHTTPConfig holds settings for outbound HTTP requests.
type OutboundHTTPConfig struct {
	// SSRFMode is one of: strict, off
	SSRFMode string `toml:"ssrf_mode"`

	TimeoutMS          int   `toml:"timeout_ms"`
	ConnectTimeoutMS   int   `toml:"connect_timeout_ms"`
	MaxRedirects       int   `toml:"max_redirects"`
	MaxResponseBytes   int64 `toml:"max_response_bytes"`
	InsecureSkipVerify bool  `toml:"insecure_skip_verify"`
}

// BuildServiceConfig returns the raw service config map for a given service name.
// Returns nil if the service is not configured in [http.services.<name>].
func (c *Config) BuildServiceConfig(serviceName string) map[string]any {
	if c.HTTP.Services == nil {
		return nil
	}
	svcCfg, ok := c.HTTP.Services[serviceName]
	if !ok {
		return nil
	}
	result := make(map[string]any, len(svcCfg))
	for k, v := range svcCfg {
		result[k] = v
	}
	return result
}

// InterceptorConfig returns the raw config map for an interceptor, or nil.
func (c *Config) InterceptorConfig(name string) map[string]any {
	if c.HTTP.Interceptors == nil {
		return nil
	}
	return c.HTTP.Interceptors[name]
}

// ValidateBackend checks the settings the lab router backend cannot start without.
func (c *Config) ValidateBackend() error {
	if strings.TrimSpace(c.Instruqt.APIToken) == "" {
		return fmt.Errorf("instruqt.api_token is required (set INSTRUQT_API_TOKEN)")
	}
	if strings.TrimSpace(c.Instruqt.TeamSlug) == "" {
		return fmt.Errorf("instruqt.team_slug is required (set INSTRUQT_TEAM_SLUG)")
	}
	if _, err := url.ParseRequestURI(c.Instruqt.APIURL); err != nil {
		return fmt.Errorf("invalid instruqt.api_url %q: %w", c.Instruqt.APIURL, err)
	}
	return nil
}

// Redacted returns a string representation of the config with secrets redacted.
func (c *Config) Redacted() string {
	var sb strings.Builder
	sb.WriteString("Config{\n")
	fmt.Fprintf(&sb, "  Mode: %q,\n", c.Mode)
	fmt.Fprintf(&sb, "  PublicOrigin: %q,\n", c.PublicOrigin)
	fmt.Fprintf(&sb, "  ExternalBasePath: %q,\n", c.ExternalBasePath)
	fmt.Fprintf(&sb, "  ListenAddr: %q,\n", c.ListenAddr)
	fmt.Fprintf(&sb, "  Server: {TrustedProxies: %v},\n", c.Server.TrustedProxies)
	fmt.Fprintf(&sb, "  TLS: {Mode: %q, CertFile: %q, KeyFile: %q},\n", c.TLS.Mode, c.TLS.CertFile, c.TLS.KeyFile)
	sb.WriteString("  OutboundHTTP: {\n")
	fmt.Fprintf(&sb, "    SSRFMode: %q,\n", c.OutboundHTTP.SSRFMode)
	fmt.Fprintf(&sb, "    TimeoutMS: %d,\n", c.OutboundHTTP.TimeoutMS)
	fmt.Fprintf(&sb, "    MaxRedirects: %d,\n", c.OutboundHTTP.MaxRedirects)
	fmt.Fprintf(&sb, "    MaxResponseBytes: %d,\n", c.OutboundHTTP.MaxResponseBytes)
	fmt.Fprintf(&sb, "    InsecureSkipVerify: %v,\n", c.OutboundHTTP.InsecureSkipVerify)
	sb.WriteString("  },\n")
	fmt.Fprintf(&sb, "  Router: {APIKey: %s},\n", redact(c.Router.APIKey))
	sb.WriteString("  Instruqt: {\n")
	fmt.Fprintf(&sb, "    APIToken: %s,\n", redact(c.Instruqt.APIToken))
	fmt.Fprintf(&sb, "    APIURL: %q,\n", c.Instruqt.APIURL)
	fmt.Fprintf(&sb, "    TeamSlug: %q,\n", c.Instruqt.TeamSlug)
	fmt.Fprintf(&sb, "    InviteBaseURL: %q,\n", c.Instruqt.InviteBaseURL)
	fmt.Fprintf(&sb, "    TracksCacheTTLSeconds: %d,\n", c.Instruqt.TracksCacheTTLSeconds)
	sb.WriteString("  },\n")
	sb.WriteString("  OpenAI: {\n")
	fmt.Fprintf(&sb, "    APIKey: %s,\n", redact(c.OpenAI.APIKey))
	fmt.Fprintf(&sb, "    Model: %q,\n", c.OpenAI.Model)
	fmt.Fprintf(&sb, "    BaseURL: %q,\n", c.OpenAI.BaseURL)
	fmt.Fprintf(&sb, "    MenuSize: %d,\n", c.OpenAI.MenuSize)
	sb.WriteString("  },\n")
	fmt.Fprintf(&sb, "  Resolver: {Intents: %d},\n", len(c.Resolver.Intents))
	fmt.Fprintf(&sb, "  Cache: {Driver: %q},\n", c.Cache.Driver)
	fmt.Fprintf(&sb, "  Store: {Driver: %q},\n", c.Store.Driver)
	fmt.Fprintf(&sb, "  Logging: {Level: %q, AllowSensitive: %v},\n", c.Logging.Level, c.Logging.AllowSensitive)
	names := make([]string, 0, len(c.HTTP.Services))
	for name := range c.HTTP.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(&sb, "  HTTP: {Services: %q},\n", names)
	sb.WriteString("}")
	return sb.String()
}

// redact hides a secret while keeping whether it was set visible.
func redact(secret string) string {
	if secret == "" {
		return `""`
	}
	return "[REDACTED]"
}

// BackendURL returns PublicOrigin joined with ExternalBasePath.
func (c *Config) BackendURL() string {
	return strings.TrimSuffix(c.PublicOrigin, "/") + c.ExternalBasePath
}
