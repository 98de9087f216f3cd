package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MahdiBaghbani/labrouter-go/internal/components/chooser"
	"github.com/MahdiBaghbani/labrouter-go/internal/components/instruqt"
	"github.com/MahdiBaghbani/labrouter-go/internal/components/resolver"
	"github.com/MahdiBaghbani/labrouter-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/cache"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/config"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/deps"
	httpclient "github.com/MahdiBaghbani/labrouter-go/internal/platform/http/client"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/http/realip"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/http/server"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/labrouter-go/internal/platform/store"

	_ "github.com/MahdiBaghbani/labrouter-go/internal/platform/cache/loader"
	_ "github.com/MahdiBaghbani/labrouter-go/internal/platform/store/loader"
	_ "github.com/MahdiBaghbani/labrouter-go/internal/services/loader"
)

type serveOptions struct {
	configPath            string
	mode                  string
	envFile               string
	listenAddr            string
	publicOrigin          string
	externalBasePath      string
	ssrfMode              string
	tlsMode               string
	loggingLevel          string
	loggingAllowSensitive string
}

func addServeFlags(cmd *cobra.Command, o *serveOptions) {
	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "", "Path to TOML config file (optional)")
	f.StringVar(&o.mode, "mode", "", "Operating mode: strict or dev (overrides config)")
	f.StringVar(&o.envFile, "env-file", "", "Dotenv file merged under the process environment (default .env)")
	f.StringVar(&o.listenAddr, "listen", "", "Listen address (overrides config)")
	f.StringVar(&o.publicOrigin, "public-origin", "", "Public origin (overrides config)")
	f.StringVar(&o.externalBasePath, "external-base-path", "", "Path prefix for every endpoint (overrides config)")
	f.StringVar(&o.ssrfMode, "ssrf-mode", "", "Outbound SSRF protection: strict or off (overrides config)")
	f.StringVar(&o.tlsMode, "tls-mode", "", "TLS mode: off or static (overrides config)")
	f.StringVar(&o.loggingLevel, "logging-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	f.StringVar(&o.loggingAllowSensitive, "logging-allow-sensitive", "", "Log tokens and prompts: true or false (overrides config)")
}

func (o serveOptions) loaderOptions(log *slog.Logger) config.LoaderOptions {
	return config.LoaderOptions{
		ConfigPath: o.configPath,
		EnvFile:    o.envFile,
		ModeFlag:   o.mode,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:            &o.listenAddr,
			PublicOrigin:          &o.publicOrigin,
			ExternalBasePath:      &o.externalBasePath,
			SSRFMode:              &o.ssrfMode,
			TLSMode:               &o.tlsMode,
			LoggingLevel:          &o.loggingLevel,
			LoggingAllowSensitive: &o.loggingAllowSensitive,
		},
		Logger: log,
	}
}

func runServe(ctx context.Context, o serveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := logutil.NewJSON(os.Stdout, slog.LevelInfo)

	cfg, err := config.Load(o.loaderOptions(bootstrapLogger))
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		return errReported
	}

	level, err := logutil.ParseLevel(cfg.Logging.Level)
	if err != nil {
		bootstrapLogger.Warn("falling back to info level", "error", err)
	}
	logger := logutil.NewJSON(os.Stdout, level)
	slog.SetDefault(logger)

	logger.Info("effective configuration", "config", cfg.Redacted())

	if err := cfg.ValidateBackend(); err != nil {
		logger.Error("invalid backend configuration", "error", err)
		return errReported
	}
	if cfg.Router.APIKey == "" {
		logger.Warn("router.api_key is empty: every protected endpoint will answer 401 (set ROUTER_API_KEY)")
	}

	d, closeDeps, err := buildDeps(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", "error", err)
		return errReported
	}
	defer closeDeps()
	deps.SetDeps(d)

	services, err := buildServices(cfg, logger)
	if err != nil {
		logger.Error("failed to create services", "error", err)
		return errReported
	}

	srv, err := server.New(cfg, logger, services)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		return errReported
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("server started, press Ctrl+C to stop")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			return errReported
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return errReported
	}

	logger.Info("server stopped")
	return nil
}

// buildDeps wires the shared dependencies. The returned func closes the
// cache and the ledger.
func buildDeps(cfg *config.Config, logger *slog.Logger) (*deps.Deps, func(), error) {
	httpClient := httpclient.New(&cfg.OutboundHTTP)

	c, err := cache.New(cfg.Cache.Driver, cfg.Cache.Drivers)
	if err != nil {
		return nil, nil, fmt.Errorf("cache: %w", err)
	}

	ledger, err := store.New(cfg.Store.Driver, cfg.Store.Drivers)
	if err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("store: %w", err)
	}

	labs := instruqt.New(instruqt.Config{
		APIURL:        cfg.Instruqt.APIURL,
		APIToken:      cfg.Instruqt.APIToken,
		TeamSlug:      cfg.Instruqt.TeamSlug,
		InviteBaseURL: cfg.Instruqt.InviteBaseURL,
		TracksTTL:     time.Duration(cfg.Instruqt.TracksCacheTTLSeconds) * time.Second,
	}, httpClient, c, logger.With("component", "instruqt"))

	var pick resolver.Chooser
	if oc := chooser.New(chooser.Config{
		APIKey:     cfg.OpenAI.APIKey,
		Model:      cfg.OpenAI.Model,
		BaseURL:    cfg.OpenAI.BaseURL,
		HTTPClient: httpClient.StdClient(),
	}, logger.With("component", "chooser")); oc != nil {
		pick = oc
		logger.Info("LLM fallback enabled", "model", cfg.OpenAI.Model)
	} else {
		logger.Info("LLM fallback disabled (no openai.api_key)")
	}

	intents := make([]resolver.Intent, 0, len(cfg.Resolver.Intents))
	for _, in := range cfg.Resolver.Intents {
		intents = append(intents, resolver.Intent{Keywords: in.Keywords, Slug: in.Slug})
	}

	res := resolver.New(labs, pick, ledger, resolver.Options{
		Intents:     intents,
		MenuSize:    cfg.OpenAI.MenuSize,
		KeepPrompts: cfg.Logging.AllowSensitive,
	}, logger.With("component", "resolver"))

	d := &deps.Deps{
		Config:     cfg,
		Cache:      c,
		Ledger:     ledger,
		RealIP:     realip.NewTrustedProxies(cfg.Server.TrustedProxies),
		HTTPClient: httpClient,
		Labs:       labs,
		Resolver:   res,
	}
	closeAll := func() {
		if err := ledger.Close(); err != nil {
			logger.Warn("ledger close error", "error", err)
		}
		if err := c.Close(); err != nil {
			logger.Warn("cache close error", "error", err)
		}
	}
	return d, closeAll, nil
}

// buildServices constructs core services always and others only when configured.
func buildServices(cfg *config.Config, logger *slog.Logger) (map[string]service.Service, error) {
	services := make(map[string]service.Service)
	for _, name := range service.RegisteredServices() {
		conf := cfg.BuildServiceConfig(name)
		if conf == nil && !slices.Contains(service.CoreServices, name) {
			continue
		}
		svc, err := service.Get(name)(conf, logger.With("service", name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		services[name] = svc
	}
	return services, nil
}
