package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Mode represents the server operating mode.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeDev    Mode = "dev"
)

// DefaultEnvFile is read when LoaderOptions.EnvFile is empty. A missing default file is not an error.
const DefaultEnvFile = ".env"

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return ModeStrict, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of strict, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but file is missing or invalid, loading fails.
	ConfigPath string

	// EnvFile is a dotenv file merged under the process environment.
	// Empty means DefaultEnvFile, which may be absent.
	EnvFile string

	// Environment replaces the process environment when non-nil (tests).
	Environment map[string]string

	// ModeFlag is the --mode flag value (overrides config file mode).
	ModeFlag string

	// FlagOverrides are CLI flag values that override every other source.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr            *string
	PublicOrigin          *string
	ExternalBasePath      *string
	SSRFMode              *string
	TLSMode               *string
	LoggingLevel          *string
	LoggingAllowSensitive *string // "true", "false", or "" (unset)
}

// fileConfig mirrors Config but with pointer fields to detect presence.
type fileConfig struct {
	Mode   string        `toml:"mode"`
	Server *serverConfig `toml:"server"`

	PublicOrigin     string `toml:"public_origin"`
	ExternalBasePath string `toml:"external_base_path"`
	ListenAddr       string `toml:"listen_addr"`

	TLS          *TLSConfig          `toml:"tls"`
	OutboundHTTP *OutboundHTTPConfig `toml:"outbound_http"`
	Router       *RouterConfig       `toml:"router"`
	Instruqt     *InstruqtConfig     `toml:"instruqt"`
	OpenAI       *OpenAIConfig       `toml:"openai"`
	Resolver     *ResolverConfig     `toml:"resolver"`
	Cache        *CacheConfig        `toml:"cache"`
	Store        *StoreConfig        `toml:"store"`
	Logging      *loggingConfig      `toml:"logging"`
	HTTP         *HTTPConfig         `toml:"http"`
}

type loggingConfig struct {
	Level          string `toml:"level"`
	AllowSensitive *bool  `toml:"allow_sensitive"`
}

type serverConfig struct {
	TrustedProxies []string `toml:"trusted_proxies"`
}

// envConfig lists the environment variables the router honors.
// Empty values leave the earlier layers untouched.
type envConfig struct {
	ListenAddr   string `env:"LABROUTER_LISTEN_ADDR"`
	PublicOrigin string `env:"LABROUTER_PUBLIC_ORIGIN"`
	LogLevel     string `env:"LABROUTER_LOG_LEVEL"`

	RouterAPIKey string `env:"ROUTER_API_KEY"`

	InstruqtAPIToken string `env:"INSTRUQT_API_TOKEN"`
	InstruqtAPIURL   string `env:"INSTRUQT_API_URL"`
	InstruqtTeamSlug string `env:"INSTRUQT_TEAM_SLUG"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
}

// Load loads configuration with the following precedence:
//  1. Determine effective mode: --mode flag > mode in config file > default (strict)
//  2. Start from mode preset defaults
//  3. Overlay TOML config file values
//  4. Overlay environment (process environment over the dotenv file)
//  5. Overlay CLI flags
//  6. Validate enum fields and public_origin
//
// Unknown TOML keys produce a warning but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var fc fileConfig
	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
	}

	modeStr := "strict"
	if fc.Mode != "" {
		modeStr = fc.Mode
	}
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}
	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)
	overlayFileConfig(cfg, &fc)

	environ, err := loadEnvironment(opts)
	if err != nil {
		return nil, err
	}
	var ec envConfig
	if err := env.ParseWithOptions(&ec, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	overlayEnv(cfg, ec)

	overlayFlags(cfg, opts.FlagOverrides)

	if err := validateEnums(cfg); err != nil {
		return nil, err
	}
	if err := validatePublicOrigin(cfg); err != nil {
		return nil, err
	}
	if err := validateExternalBasePath(cfg); err != nil {
		return nil, err
	}
	if err := validateIntents(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateIntents rejects intents that could never match or name no lab.
func validateIntents(cfg *Config) error {
	for i, in := range cfg.Resolver.Intents {
		if strings.TrimSpace(in.Slug) == "" {
			return fmt.Errorf("resolver.intents[%d]: slug is required", i)
		}
		if len(in.Keywords) == 0 {
			return fmt.Errorf("resolver.intents[%d] (%s): at least one keyword is required", i, in.Slug)
		}
	}
	return nil
}

// loadEnvironment merges the dotenv file under the process (or injected) environment.
// Variables already present win, matching godotenv.Load.
func loadEnvironment(opts LoaderOptions) (map[string]string, error) {
	environ := opts.Environment
	if environ == nil {
		environ = env.ToMap(os.Environ())
	} else {
		copied := make(map[string]string, len(environ))
		for k, v := range environ {
			copied[k] = v
		}
		environ = copied
	}

	path := opts.EnvFile
	if path == "" {
		path = DefaultEnvFile
	}
	fileVars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && opts.EnvFile == "" {
			return environ, nil
		}
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	for k, v := range fileVars {
		if _, ok := environ[k]; !ok {
			environ[k] = v
		}
	}
	return environ, nil
}

func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return StrictConfig()
}

// StrictConfig returns production-safe strict defaults.
func StrictConfig() *Config {
	return &Config{
		Mode:         string(ModeStrict),
		PublicOrigin: "http://localhost:8000",
		ListenAddr:   ":8000",
		Server: ServerConfig{
			TrustedProxies: []string{"127.0.0.0/8", "::1/128"},
		},
		TLS: TLSConfig{Mode: "off"},
		OutboundHTTP: OutboundHTTPConfig{
			SSRFMode:         "strict",
			TimeoutMS:        10000,
			ConnectTimeoutMS: 2000,
			MaxRedirects:     1,
			MaxResponseBytes: 1048576,
		},
		Instruqt: InstruqtConfig{
			APIURL:                "https://play.instruqt.com/graphql",
			InviteBaseURL:         "https://play.instruqt.com",
			TracksCacheTTLSeconds: 300,
		},
		OpenAI: OpenAIConfig{
			Model:    "gpt-4o-mini",
			MenuSize: 50,
		},
		Cache:   CacheConfig{Driver: "memory"},
		Store:   StoreConfig{Driver: "memory"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// DevConfig returns development mode defaults.
func DevConfig() *Config {
	cfg := StrictConfig()
	cfg.Mode = string(ModeDev)
	cfg.OutboundHTTP.SSRFMode = "off"
	cfg.OutboundHTTP.MaxRedirects = 3
	cfg.OutboundHTTP.InsecureSkipVerify = true
	cfg.Logging.Level = "debug"
	return cfg
}

// overlayFileConfig applies TOML values onto cfg.
func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.PublicOrigin != "" {
		cfg.PublicOrigin = fc.PublicOrigin
	}
	if fc.ExternalBasePath != "" {
		cfg.ExternalBasePath = fc.ExternalBasePath
	}
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}

	if fc.Server != nil && len(fc.Server.TrustedProxies) > 0 {
		cfg.Server.TrustedProxies = fc.Server.TrustedProxies
	}

	if fc.TLS != nil {
		setString(&cfg.TLS.Mode, fc.TLS.Mode)
		setString(&cfg.TLS.CertFile, fc.TLS.CertFile)
		setString(&cfg.TLS.KeyFile, fc.TLS.KeyFile)
	}

	if fc.OutboundHTTP != nil {
		o := fc.OutboundHTTP
		setString(&cfg.OutboundHTTP.SSRFMode, o.SSRFMode)
		setInt(&cfg.OutboundHTTP.TimeoutMS, o.TimeoutMS)
		setInt(&cfg.OutboundHTTP.ConnectTimeoutMS, o.ConnectTimeoutMS)
		setInt(&cfg.OutboundHTTP.MaxRedirects, o.MaxRedirects)
		if o.MaxResponseBytes > 0 {
			cfg.OutboundHTTP.MaxResponseBytes = o.MaxResponseBytes
		}
		cfg.OutboundHTTP.InsecureSkipVerify = o.InsecureSkipVerify
	}

	if fc.Router != nil {
		setString(&cfg.Router.APIKey, fc.Router.APIKey)
	}

	if fc.Instruqt != nil {
		i := fc.Instruqt
		setString(&cfg.Instruqt.APIToken, i.APIToken)
		setString(&cfg.Instruqt.APIURL, i.APIURL)
		setString(&cfg.Instruqt.TeamSlug, i.TeamSlug)
		setString(&cfg.Instruqt.InviteBaseURL, i.InviteBaseURL)
		setInt(&cfg.Instruqt.TracksCacheTTLSeconds, i.TracksCacheTTLSeconds)
	}

	if fc.OpenAI != nil {
		o := fc.OpenAI
		setString(&cfg.OpenAI.APIKey, o.APIKey)
		setString(&cfg.OpenAI.Model, o.Model)
		setString(&cfg.OpenAI.BaseURL, o.BaseURL)
		setInt(&cfg.OpenAI.MenuSize, o.MenuSize)
	}

	if fc.Resolver != nil && len(fc.Resolver.Intents) > 0 {
		cfg.Resolver.Intents = fc.Resolver.Intents
	}

	if fc.Cache != nil {
		setString(&cfg.Cache.Driver, fc.Cache.Driver)
		if fc.Cache.Drivers != nil {
			cfg.Cache.Drivers = fc.Cache.Drivers
		}
	}

	if fc.Store != nil {
		setString(&cfg.Store.Driver, fc.Store.Driver)
		if fc.Store.Drivers != nil {
			cfg.Store.Drivers = fc.Store.Drivers
		}
	}

	if fc.Logging != nil {
		setString(&cfg.Logging.Level, fc.Logging.Level)
		if fc.Logging.AllowSensitive != nil {
			cfg.Logging.AllowSensitive = *fc.Logging.AllowSensitive
		}
	}

	if fc.HTTP != nil {
		if len(fc.HTTP.Services) > 0 {
			if cfg.HTTP.Services == nil {
				cfg.HTTP.Services = make(map[string]map[string]any)
			}
			for name, svcCfg := range fc.HTTP.Services {
				cfg.HTTP.Services[name] = svcCfg
			}
		}
		if len(fc.HTTP.Interceptors) > 0 {
			if cfg.HTTP.Interceptors == nil {
				cfg.HTTP.Interceptors = make(map[string]map[string]any)
			}
			for name, intCfg := range fc.HTTP.Interceptors {
				cfg.HTTP.Interceptors[name] = intCfg
			}
		}
	}
}

// overlayEnv applies non-empty environment values onto cfg.
func overlayEnv(cfg *Config, e envConfig) {
	setString(&cfg.ListenAddr, e.ListenAddr)
	setString(&cfg.PublicOrigin, e.PublicOrigin)
	setString(&cfg.Logging.Level, e.LogLevel)
	setString(&cfg.Router.APIKey, e.RouterAPIKey)
	setString(&cfg.Instruqt.APIToken, e.InstruqtAPIToken)
	setString(&cfg.Instruqt.APIURL, e.InstruqtAPIURL)
	setString(&cfg.Instruqt.TeamSlug, e.InstruqtTeamSlug)
	setString(&cfg.OpenAI.APIKey, e.OpenAIAPIKey)
	setString(&cfg.OpenAI.Model, e.OpenAIModel)
	setString(&cfg.OpenAI.BaseURL, e.OpenAIBaseURL)
}

// overlayFlags applies CLI flag values onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) {
	setStringPtr(&cfg.ListenAddr, f.ListenAddr)
	setStringPtr(&cfg.PublicOrigin, f.PublicOrigin)
	setStringPtr(&cfg.ExternalBasePath, f.ExternalBasePath)
	setStringPtr(&cfg.OutboundHTTP.SSRFMode, f.SSRFMode)
	setStringPtr(&cfg.TLS.Mode, f.TLSMode)
	setStringPtr(&cfg.Logging.Level, f.LoggingLevel)
	if f.LoggingAllowSensitive != nil && *f.LoggingAllowSensitive != "" {
		cfg.Logging.AllowSensitive = *f.LoggingAllowSensitive == "true"
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setStringPtr(dst *string, v *string) {
	if v != nil {
		setString(dst, *v)
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// validateEnums validates enum-like config fields and returns an error for invalid values.
func validateEnums(cfg *Config) error {
	switch cfg.TLS.Mode {
	case "off":
	case "static":
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return fmt.Errorf("tls.mode static requires tls.cert_file and tls.key_file")
		}
	default:
		return fmt.Errorf("invalid tls.mode %q: must be one of off, static", cfg.TLS.Mode)
	}

	switch cfg.OutboundHTTP.SSRFMode {
	case "strict", "off":
	default:
		return fmt.Errorf("invalid outbound_http.ssrf_mode %q: must be one of strict, off", cfg.OutboundHTTP.SSRFMode)
	}

	switch cfg.Cache.Driver {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("invalid cache.driver %q: must be one of memory or redis", cfg.Cache.Driver)
	}

	switch cfg.Store.Driver {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("invalid store.driver %q: must be one of memory or sqlite", cfg.Store.Driver)
	}

	switch cfg.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of trace, debug, info, warn, error", cfg.Logging.Level)
	}

	if cfg.OpenAI.MenuSize < 1 {
		return fmt.Errorf("invalid openai.menu_size %d: must be positive", cfg.OpenAI.MenuSize)
	}

	return validateRatelimitConfig(cfg)
}

// validateRatelimitConfig checks that every service opting into rate limiting
// names a profile defined at [http.interceptors.ratelimit.profiles.<name>].
func validateRatelimitConfig(cfg *Config) error {
	profiles := make(map[string]bool)
	if rlCfg := cfg.InterceptorConfig("ratelimit"); rlCfg != nil {
		if profilesRaw, ok := rlCfg["profiles"]; ok {
			profilesMap, ok := profilesRaw.(map[string]any)
			if !ok {
				return fmt.Errorf("http.interceptors.ratelimit.profiles must be a map")
			}
			for name, profile := range profilesMap {
				if _, ok := profile.(map[string]any); !ok {
					return fmt.Errorf("http.interceptors.ratelimit.profiles.%s must be a map", name)
				}
				profiles[name] = true
			}
		}
	}

	for svcName, svcCfg := range cfg.HTTP.Services {
		rlMap, ok := svcCfg["ratelimit"].(map[string]any)
		if !ok {
			continue
		}
		if profileStr, ok := rlMap["profile"].(string); ok && !profiles[profileStr] {
			return fmt.Errorf("http.services.%s.ratelimit references undefined profile %q", svcName, profileStr)
		}
	}
	return nil
}

// validatePublicOrigin checks the public_origin config value when set.
// Must be an absolute URL with http/https scheme, a host, no userinfo,
// query, fragment, or base path. Whitespace is rejected, not trimmed.
func validatePublicOrigin(cfg *Config) error {
	origin := cfg.PublicOrigin
	if origin == "" {
		return nil
	}
	if origin != strings.TrimSpace(origin) {
		return fmt.Errorf("invalid public_origin %q: must not contain leading or trailing whitespace", origin)
	}

	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid public_origin %q: %w", origin, err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("invalid public_origin %q: must be an absolute URL with http or https scheme", origin)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid public_origin %q: scheme must be http or https, got %q", origin, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid public_origin %q: must include a host", origin)
	}
	if u.User != nil {
		return fmt.Errorf("invalid public_origin %q: must not include userinfo", origin)
	}
	if u.RawQuery != "" {
		return fmt.Errorf("invalid public_origin %q: must not include a query string", origin)
	}
	if u.Fragment != "" {
		return fmt.Errorf("invalid public_origin %q: must not include a fragment", origin)
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("invalid public_origin %q: must not include a path (use external_base_path for base path)", origin)
	}
	return nil
}

// validateExternalBasePath requires a leading slash and no trailing slash when set.
func validateExternalBasePath(cfg *Config) error {
	p := cfg.ExternalBasePath
	if p == "" {
		return nil
	}
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("invalid external_base_path %q: must start with /", p)
	}
	if strings.HasSuffix(p, "/") {
		return fmt.Errorf("invalid external_base_path %q: must not end with /", p)
	}
	return nil
}
