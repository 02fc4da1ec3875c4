// Command couchskill serves the Couch Potato voice skill.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/couchskill/internal/config"
	"github.com/MrWong99/couchskill/internal/health"
	"github.com/MrWong99/couchskill/internal/observe"
	"github.com/MrWong99/couchskill/internal/phonetic"
	"github.com/MrWong99/couchskill/internal/skill"
	"github.com/MrWong99/couchskill/internal/webhook"
	"github.com/MrWong99/couchskill/pkg/provider/media"
	"github.com/MrWong99/couchskill/pkg/provider/media/couchpotato"
	"github.com/MrWong99/couchskill/pkg/provider/media/postgres"
)

// reloadGrace is how long a replaced provider set stays open for requests
// that resolved a provider before a reload.
const reloadGrace = 30 * time.Second

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "couchskill: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "couchskill: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := newLogger(level)
	slog.SetDefault(logger)

	slog.Info("couchskill starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	buildOpts := []config.BuildOption{
		config.WithBuildMetrics(metrics),
		config.WithBuildLogger(logger),
	}
	set, err := reg.Build(cfg, buildOpts...)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	resolver := config.NewSwappableResolver(set)
	defer func() { resolver.Current().Close() }()

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.ProvidersChanged {
			next, err := reg.Build(new, buildOpts...)
			if err != nil {
				slog.Error("config reload: keeping previous providers", "err", err)
			} else {
				resolver.Replace(next, reloadGrace)
				slog.Info("providers reloaded", "changes", d.ProviderChanges)
			}
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("config reload: restart required to apply", "sections", d.RestartRequired)
		}
	}, config.WithWatcherLogger(logger))
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Skill ─────────────────────────────────────────────────────────────────
	handler := skill.New(resolver,
		skill.WithLogger(logger),
		skill.WithMatcher(phonetic.New()),
	)
	router := skill.NewRouter(handler,
		skill.WithMetrics(metrics),
		skill.WithRouterLogger(logger),
	)

	hookOpts := []webhook.Option{
		webhook.WithApplicationID(cfg.Skill.ApplicationID),
		webhook.WithTimestampTolerance(cfg.Skill.TimestampTolerance),
		webhook.WithMetrics(metrics),
		webhook.WithLogger(logger),
	}
	if cfg.Skill.VerifySignatures {
		hookOpts = append(hookOpts, webhook.WithVerifier(webhook.NewVerifier()))
	}

	// ── HTTP ──────────────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.Handle("POST "+cfg.Skill.EndpointPath, webhook.New(router, hookOpts...))
	health.New(resolver.Checkers).Register(mux)
	quiet := []string{"/healthz", "/readyz"}
	if cfg.Telemetry.MetricsPath != config.MetricsDisabled {
		mux.Handle("GET "+cfg.Telemetry.MetricsPath, tel.MetricsHandler())
		quiet = append(quiet, cfg.Telemetry.MetricsPath)
	}

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics, observe.WithQuietPaths(quiet...))(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	printStartupSummary(cfg)

	errCh := make(chan error, 1)
	go func() {
		if tls := cfg.Server.TLS; tls != nil {
			errCh <- srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	slog.Info("server ready, press Ctrl+C to shut down", "endpoint", cfg.Skill.EndpointPath)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the built-in media provider factories into
// reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.Register(config.ProviderCouchPotato, func(entry config.ProviderEntry) (media.Provider, error) {
		var opts []couchpotato.Option
		if raw := optString(entry.Options, "timeout"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("couchpotato: options.timeout: %w", err)
			}
			opts = append(opts, couchpotato.WithTimeout(d))
		}
		return couchpotato.New(entry.BaseURL, entry.APIKey, opts...)
	})

	reg.Register(config.ProviderPostgres, func(entry config.ProviderEntry) (media.Provider, error) {
		var opts []postgres.Option
		if n, ok := entry.Options["search_limit"].(int); ok {
			opts = append(opts, postgres.WithSearchLimit(n))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return postgres.NewProvider(ctx, optString(entry.Options, "dsn"), opts...)
	})

	for _, name := range config.ValidProviderNames {
		slog.Debug("registered provider", "name", name)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       couchskill startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	for _, t := range media.ProviderTypes() {
		printRow(string(t), providerLabel(cfg.Providers, t))
	}
	printRow("Endpoint", cfg.Skill.EndpointPath)
	printRow("Signatures", onOff(cfg.Skill.VerifySignatures))
	printRow("TLS", onOff(cfg.Server.TLS != nil))
	printRow("Metrics", cfg.Telemetry.MetricsPath)
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(p config.ProvidersConfig, t media.ProviderType) string {
	e, ok := p[t]
	if !ok {
		return "(not configured)"
	}
	return e.Name
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "(disabled)"
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
