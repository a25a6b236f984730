package service

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/aisafe-dev/aisafegate/internal/adapter/outbound/openai"
	"github.com/aisafe-dev/aisafegate/internal/domain/guard"
	"github.com/aisafe-dev/aisafegate/internal/domain/pipeline"
	"github.com/aisafe-dev/aisafegate/internal/domain/ratelimit"
	"github.com/aisafe-dev/aisafegate/internal/domain/scan"
	"github.com/aisafe-dev/aisafegate/internal/domain/usage"
)

// Upstream forwards chat completion payloads to the model backend.
// Implemented by the OpenAI adapter.
type Upstream interface {
	ChatCompletion(ctx context.Context, payload map[string]any) (map[string]any, error)
}

// retryAfterHinter is implemented by limiters that can estimate the
// wait until the next token.
type retryAfterHinter interface {
	RetryAfter(identity string) time.Duration
}

// ScanMetrics receives per-scan measurements. Implemented by the
// telemetry provider.
type ScanMetrics interface {
	RecordScanMetrics(direction, decision string, durMs float64, findings int)
}

// UsageReport is the per-identity usage summary served by the usage
// endpoint.
type UsageReport struct {
	Identity string       `json:"identity"`
	Record   usage.Record `json:"usage"`
	SpentUSD float64      `json:"spent_usd"`
}

// ProxyService orchestrates a guarded chat completion: rate limit,
// input scan, upstream call, output scan, usage accounting.
type ProxyService struct {
	guard     *guard.Guard
	limiter   ratelimit.Limiter
	usage     usage.Tracker
	upstream  Upstream
	telemetry *TelemetryService
	metrics   ScanMetrics
	cache     *cleanCache
	logger    *slog.Logger
	price     float64 // USD per 1000 tokens
}

// ProxyServiceOption configures a ProxyService.
type ProxyServiceOption func(*ProxyService)

// WithCleanCache enables the clean-text decision cache with the given
// maximum entry count.
func WithCleanCache(maxEntries int) ProxyServiceOption {
	return func(s *ProxyService) {
		s.cache = newCleanCache(maxEntries)
	}
}

// WithTelemetry attaches a telemetry service for scan event emission.
func WithTelemetry(t *TelemetryService) ProxyServiceOption {
	return func(s *ProxyService) {
		s.telemetry = t
	}
}

// WithScanMetrics attaches a metrics sink for per-scan measurements.
func WithScanMetrics(m ScanMetrics) ProxyServiceOption {
	return func(s *ProxyService) {
		s.metrics = m
	}
}

// WithTokenPrice sets the USD price per 1000 upstream tokens used for
// spend accounting.
func WithTokenPrice(pricePer1K float64) ProxyServiceOption {
	return func(s *ProxyService) {
		s.price = pricePer1K
	}
}

// NewProxyService creates a ProxyService.
func NewProxyService(
	g *guard.Guard,
	limiter ratelimit.Limiter,
	tracker usage.Tracker,
	upstream Upstream,
	logger *slog.Logger,
	opts ...ProxyServiceOption,
) *ProxyService {
	s := &ProxyService{
		guard:    g,
		limiter:  limiter,
		usage:    tracker,
		upstream: upstream,
		logger:   logger,
		price:    0.002,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleChatCompletion runs the full guarded flow for one request.
// Returned errors are typed for status mapping at the HTTP layer:
// ratelimit.Error, guard.PolicyViolationError, or openai.UpstreamError.
// The rate limit check runs first; a rejected request never reaches a
// scanner or the upstream.
func (s *ProxyService) HandleChatCompletion(
	ctx context.Context,
	requestID, identity string,
	payload map[string]any,
) (map[string]any, error) {
	if s.limiter != nil && !s.limiter.TryAcquire(identity, 1) {
		s.usage.RecordRejected(identity)
		rlErr := &ratelimit.Error{Identity: identity}
		if h, ok := s.limiter.(retryAfterHinter); ok {
			rlErr.RetryAfter = h.RetryAfter(identity)
		}
		s.logger.Warn("request rate limited", "request_id", requestID, "identity", identity)
		return nil, rlErr
	}

	prompt := openai.ExtractUserPrompt(payload)
	if prompt != "" && !s.cache.isClean(scan.DirectionInput, prompt, "") {
		res, err := s.guard.ScanInput(ctx, prompt, identity)
		if err != nil {
			return nil, err
		}
		s.recordScan(requestID, identity, scan.DirectionInput, res)
		if !res.Passed {
			s.usage.RecordBlocked(identity)
			return nil, &guard.PolicyViolationError{Direction: scan.DirectionInput, Decision: res.Decision}
		}
		switch {
		case res.Redacted():
			s.usage.RecordRedacted(identity)
			openai.ReplaceUserPrompt(payload, res.Sanitized)
			prompt = res.Sanitized
		case len(res.Findings) == 0:
			s.cache.markClean(scan.DirectionInput, prompt, "")
		}
	}

	response, err := s.upstream.ChatCompletion(ctx, payload)
	if err != nil {
		return nil, err
	}

	output := openai.ExtractAssistantText(response)
	if output != "" && !s.cache.isClean(scan.DirectionOutput, output, prompt) {
		res, err := s.guard.ScanOutput(ctx, output, identity, prompt)
		if err != nil {
			return nil, err
		}
		s.recordScan(requestID, identity, scan.DirectionOutput, res)
		if !res.Passed {
			s.usage.RecordBlocked(identity)
			return nil, &guard.PolicyViolationError{Direction: scan.DirectionOutput, Decision: res.Decision}
		}
		switch {
		case res.Redacted():
			s.usage.RecordRedacted(identity)
			openai.ReplaceAssistantText(response, res.Sanitized)
		case len(res.Findings) == 0:
			s.cache.markClean(scan.DirectionOutput, output, prompt)
		}
	}

	tokens := openai.ExtractTotalTokens(response)
	s.usage.RecordRequest(identity, tokens)

	report := s.Usage(identity)
	response["aisafe"] = map[string]any{
		"user_id":   identity,
		"spent_usd": report.SpentUSD,
	}
	return response, nil
}

func (s *ProxyService) recordScan(requestID, identity string, dir scan.Direction, res *pipeline.AggregateResult) {
	if s.telemetry != nil {
		s.telemetry.RecordScan(requestID, identity, dir, res)
	}
	if s.metrics != nil {
		s.metrics.RecordScanMetrics(string(dir), res.Decision.Kind.String(), float64(res.Elapsed)/float64(time.Millisecond), len(res.Findings))
	}
}

// Usage returns the usage summary for an identity.
func (s *ProxyService) Usage(identity string) UsageReport {
	rec := s.usage.Snapshot(identity)
	spent := float64(rec.TokensSeen) / 1000.0 * s.price
	return UsageReport{
		Identity: identity,
		Record:   rec,
		SpentUSD: math.Round(spent*1e6) / 1e6,
	}
}

// ScanResultSummary exposes a pipeline result for the one-shot scan CLI.
type ScanResultSummary struct {
	Passed    bool              `json:"passed"`
	Decision  string            `json:"decision"`
	Findings  []scan.Finding    `json:"findings,omitempty"`
	Sanitized string            `json:"sanitized"`
	Timings   map[string]string `json:"timings,omitempty"`
}

// Summarize converts an aggregate result for display.
func Summarize(res *pipeline.AggregateResult) ScanResultSummary {
	timings := make(map[string]string, len(res.Timings))
	for name, d := range res.Timings {
		timings[name] = d.String()
	}
	return ScanResultSummary{
		Passed:    res.Passed,
		Decision:  res.Decision.Kind.String(),
		Findings:  res.Decision.Findings,
		Sanitized: res.Sanitized,
		Timings:   timings,
	}
}

// cleanCache remembers xxhash digests of texts that scanned clean, so
// repeated identical requests skip the pipeline. Only findings-free
// results are cached; anything actionable is always rescanned.
type cleanCache struct {
	mu      sync.Mutex
	entries map[uint64]struct{}
	max     int
}

func newCleanCache(maxEntries int) *cleanCache {
	return &cleanCache{
		entries: make(map[uint64]struct{}, maxEntries),
		max:     maxEntries,
	}
}

func cacheKey(dir scan.Direction, text, inputText string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(string(dir))
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(text)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(inputText)
	return h.Sum64()
}

func (c *cleanCache) isClean(dir scan.Direction, text, inputText string) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[cacheKey(dir, text, inputText)]
	return ok
}

func (c *cleanCache) markClean(dir scan.Direction, text, inputText string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.max {
		// Full reset beats per-entry eviction bookkeeping at this size.
		c.entries = make(map[uint64]struct{}, c.max)
	}
	c.entries[cacheKey(dir, text, inputText)] = struct{}{}
}
