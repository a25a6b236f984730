package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/aisafe-dev/aisafegate/internal/domain/auth"
	"github.com/aisafe-dev/aisafegate/internal/service"
)

// Transport is the inbound adapter that serves the OpenAI-compatible
// proxy API over HTTP.
type Transport struct {
	proxyService  *service.ProxyService
	server        *http.Server
	addr          string
	logger        *slog.Logger
	metrics       *Metrics
	healthChecker *HealthChecker
	tracer        trace.Tracer
	keyring       *auth.Keyring
	bucketCount   func() int
	dropCount     func() int64
}

// Option is a functional option for configuring Transport.
type Option func(*Transport)

// WithAddr sets the listen address for the HTTP server.
// Default is "127.0.0.1:8686" (localhost only).
func WithAddr(addr string) Option {
	return func(t *Transport) {
		t.addr = addr
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *Transport) {
		t.healthChecker = hc
	}
}

// WithTracer enables per-request tracing spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(t *Transport) {
		t.tracer = tracer
	}
}

// WithAuth requires a valid bearer API key on the proxy endpoints.
func WithAuth(keyring *auth.Keyring) Option {
	return func(t *Transport) {
		t.keyring = keyring
	}
}

// WithRateLimitGauge exposes the active rate limit bucket count on
// /metrics.
func WithRateLimitGauge(size func() int) Option {
	return func(t *Transport) {
		t.bucketCount = size
	}
}

// WithTelemetryDropCounter exposes the telemetry drop count on /metrics.
func WithTelemetryDropCounter(drops func() int64) Option {
	return func(t *Transport) {
		t.dropCount = drops
	}
}

// NewTransport creates an HTTP transport adapter wrapping the given
// proxy service.
func NewTransport(proxyService *service.ProxyService, opts ...Option) *Transport {
	t := &Transport{
		proxyService: proxyService,
		addr:         "127.0.0.1:8686",
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Start begins accepting HTTP connections. It blocks until the context
// is cancelled or the server fails.
func (t *Transport) Start(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	t.metrics = NewMetrics(reg)
	if t.bucketCount != nil {
		RegisterRateLimitKeysGauge(reg, t.bucketCount)
	}
	if t.dropCount != nil {
		RegisterTelemetryDropsCounter(reg, t.dropCount)
	}

	handler := NewHandler(t.proxyService, t.metrics)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handler.ChatCompletions)
	mux.HandleFunc("GET /v1/usage/{identity}", handler.Usage)
	if t.healthChecker != nil {
		mux.Handle("/health", t.healthChecker.Handler())
	} else {
		mux.Handle("/health", healthHandler())
	}
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry: reg,
	}))

	// Middleware chain, outermost first: metrics wraps everything so it
	// captures the full request duration.
	var root http.Handler = mux
	if t.keyring != nil {
		root = AuthMiddleware(t.keyring, t.logger)(root)
	}
	root = RequestIDMiddleware(t.logger)(root)
	if t.tracer != nil {
		root = TracingMiddleware(t.tracer)(root)
	}
	root = MetricsMiddleware(t.metrics)(root)

	t.server = &http.Server{
		Addr:              t.addr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info("starting HTTP server", "addr", t.addr)
		err := t.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *Transport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *Transport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}

// healthHandler is the fallback /health endpoint when no checker is
// configured.
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(HealthResponse{Status: "healthy"})
	})
}
