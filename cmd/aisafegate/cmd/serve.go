package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aisafe-dev/aisafegate/internal/adapter/inbound/http"
	"github.com/aisafe-dev/aisafegate/internal/adapter/outbound/celcond"
	"github.com/aisafe-dev/aisafegate/internal/adapter/outbound/eventlog"
	"github.com/aisafe-dev/aisafegate/internal/adapter/outbound/memory"
	"github.com/aisafe-dev/aisafegate/internal/adapter/outbound/openai"
	"github.com/aisafe-dev/aisafegate/internal/config"
	"github.com/aisafe-dev/aisafegate/internal/domain/auth"
	"github.com/aisafe-dev/aisafegate/internal/domain/guard"
	"github.com/aisafe-dev/aisafegate/internal/domain/ratelimit"
	"github.com/aisafe-dev/aisafegate/internal/service"
	"github.com/aisafe-dev/aisafegate/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proxy server",
	Long: `Start the aisafegate proxy server.

The server exposes an OpenAI-compatible /v1/chat/completions endpoint,
scans every prompt and response against the configured scanner chains,
and forwards clean requests to the configured upstream.

Examples:
  # Start with config file settings
  aisafegate serve

  # Start with a specific config file
  aisafegate --config /path/to/config.yaml serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Signal context for graceful shutdown. stop() restores default
	// handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	return run(ctx, cfg, logger)
}

// run wires all components together and starts the transport.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	evaluator, err := celcond.NewEvaluator()
	if err != nil {
		return fmt.Errorf("failed to create suppression evaluator: %w", err)
	}

	g, err := guard.New(cfg, evaluator, logger)
	if err != nil {
		return fmt.Errorf("failed to build guard: %w", err)
	}

	var limiter *memory.TokenBucketLimiter
	if cfg.RateLimit.Enabled {
		cleanupInterval, err := time.ParseDuration(cfg.RateLimit.CleanupInterval)
		if err != nil {
			cleanupInterval = 5 * time.Minute
			logger.Warn("invalid rate_limit.cleanup_interval, using default",
				"value", cfg.RateLimit.CleanupInterval, "default", "5m")
		}
		maxTTL, err := time.ParseDuration(cfg.RateLimit.MaxTTL)
		if err != nil {
			maxTTL = time.Hour
			logger.Warn("invalid rate_limit.max_ttl, using default",
				"value", cfg.RateLimit.MaxTTL, "default", "1h")
		}

		limiter = memory.NewTokenBucketLimiter(ratelimit.Config{
			Capacity:   cfg.RateLimit.Capacity,
			RefillRate: cfg.RateLimit.RefillRate,
		}, memory.WithCleanup(cleanupInterval, maxTTL))
		limiter.StartCleanup()
		defer limiter.Stop()

		logger.Debug("rate limiting enabled",
			"capacity", cfg.RateLimit.Capacity,
			"refill_rate", cfg.RateLimit.RefillRate,
			"cleanup_interval", cleanupInterval,
			"max_ttl", maxTTL,
		)
	}

	usageStore := memory.NewUsageStore()

	upstreamTimeout, err := time.ParseDuration(cfg.Upstream.Timeout)
	if err != nil {
		upstreamTimeout = 60 * time.Second
		logger.Warn("invalid upstream.timeout, using default",
			"value", cfg.Upstream.Timeout, "default", "60s")
	}
	upstream := openai.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, upstreamTimeout)

	var telemetryService *service.TelemetryService
	if cfg.Settings.Telemetry {
		store, err := eventlog.NewStore(cfg.Settings.TelemetryOutput)
		if err != nil {
			return fmt.Errorf("failed to create event store: %w", err)
		}
		defer func() { _ = store.Close() }()

		telemetryService = service.NewTelemetryService(store, logger)
		telemetryService.Start(ctx)
		defer telemetryService.Stop()
		logger.Debug("telemetry enabled", "output", cfg.Settings.TelemetryOutput)
	}

	otelProvider, err := telemetry.NewProvider(ctx, cfg.Settings.Tracing, "aisafegate", Version, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to configure telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		otelProvider.Shutdown(shutdownCtx)
	}()

	proxyOpts := []service.ProxyServiceOption{
		service.WithTokenPrice(cfg.Settings.PricePer1KTokens),
	}
	if cfg.Cache.Enabled {
		proxyOpts = append(proxyOpts, service.WithCleanCache(cfg.Cache.MaxEntries))
	}
	if telemetryService != nil {
		proxyOpts = append(proxyOpts, service.WithTelemetry(telemetryService))
	}
	if otelProvider.Enabled {
		proxyOpts = append(proxyOpts, service.WithScanMetrics(otelProvider))
	}

	var proxyLimiter ratelimit.Limiter
	if limiter != nil {
		proxyLimiter = limiter
	}
	proxyService := service.NewProxyService(g, proxyLimiter, usageStore, upstream, logger, proxyOpts...)

	healthChecker := http.NewHealthChecker(limiter, telemetryService, Version)

	transportOpts := []http.Option{
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithLogger(logger),
		http.WithHealthChecker(healthChecker),
	}
	if limiter != nil {
		transportOpts = append(transportOpts, http.WithRateLimitGauge(limiter.Size))
	}
	if telemetryService != nil {
		transportOpts = append(transportOpts, http.WithTelemetryDropCounter(telemetryService.DroppedEvents))
	}
	if otelProvider.Enabled {
		transportOpts = append(transportOpts, http.WithTracer(otelProvider.Tracer()))
	}
	if cfg.Auth.Enabled {
		keys := make([]auth.ConfiguredKey, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			keys = append(keys, auth.ConfiguredKey{Hash: k.KeyHash, Identity: k.Identity})
		}
		keyring, err := auth.NewKeyring(keys)
		if err != nil {
			return fmt.Errorf("failed to build keyring: %w", err)
		}
		if keyring.Len() == 0 {
			return fmt.Errorf("auth is enabled but no api keys are configured")
		}
		transportOpts = append(transportOpts, http.WithAuth(keyring))
	}

	logger.Info("aisafegate starting",
		"version", Version,
		"http_addr", cfg.Server.HTTPAddr,
		"upstream", cfg.Upstream.BaseURL,
		"input_scanners", len(cfg.Input),
		"output_scanners", len(cfg.Output),
		"rate_limit", cfg.RateLimit.Enabled,
		"telemetry", cfg.Settings.Telemetry,
		"auth", cfg.Auth.Enabled,
	)

	transport := http.NewTransport(proxyService, transportOpts...)
	return transport.Start(ctx)
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
