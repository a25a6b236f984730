package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aisafe-dev/aisafegate/internal/adapter/outbound/openai"
	"github.com/aisafe-dev/aisafegate/internal/domain/guard"
	"github.com/aisafe-dev/aisafegate/internal/domain/ratelimit"
	"github.com/aisafe-dev/aisafegate/internal/domain/scan"
	"github.com/aisafe-dev/aisafegate/internal/service"
)

// maxRequestBytes bounds accepted request bodies.
const maxRequestBytes = 10 << 20

// errorBody is the OpenAI-compatible error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message  string   `json:"message"`
	Type     string   `json:"type"`
	Code     string   `json:"code,omitempty"`
	Scanners []string `json:"scanners,omitempty"`
}

// Handler serves the OpenAI-compatible proxy API.
type Handler struct {
	proxy   *service.ProxyService
	metrics *Metrics
}

// NewHandler creates a Handler around the proxy service. Metrics may be
// nil when no registry is wired.
func NewHandler(proxy *service.ProxyService, metrics *Metrics) *Handler {
	return &Handler{proxy: proxy, metrics: metrics}
}

// ChatCompletions handles POST /v1/chat/completions.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context())

	var payload map[string]any
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, errorDetail{
			Message: "request body is not valid JSON: " + err.Error(),
			Type:    "invalid_request_error",
		})
		return
	}

	identity := resolveIdentity(r, payload)
	requestID := RequestIDFromContext(r.Context())

	response, err := h.proxy.HandleChatCompletion(r.Context(), requestID, identity, payload)
	if err != nil {
		h.writeProxyError(w, logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// Usage handles GET /v1/usage/{identity}.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")
	if identity == "" {
		writeError(w, http.StatusBadRequest, errorDetail{
			Message: "identity path segment is required",
			Type:    "invalid_request_error",
		})
		return
	}

	report := h.proxy.Usage(identity)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

// writeProxyError maps typed proxy errors to HTTP statuses. Unknown
// errors fail closed with a 500 and no detail.
func (h *Handler) writeProxyError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var rlErr *ratelimit.Error
	if errors.As(err, &rlErr) {
		if h.metrics != nil {
			h.metrics.RateLimitRejections.Inc()
		}
		if rlErr.RetryAfter > 0 {
			secs := int(rlErr.RetryAfter.Seconds())
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		writeError(w, http.StatusTooManyRequests, errorDetail{
			Message: "rate limit exceeded",
			Type:    "rate_limit_error",
		})
		return
	}

	var pvErr *guard.PolicyViolationError
	if errors.As(err, &pvErr) {
		if h.metrics != nil {
			h.metrics.ScanDecisions.WithLabelValues(string(pvErr.Direction), "block").Inc()
		}
		if syntheticBlock(pvErr) {
			// Fail-closed scanner failure, not a real policy hit.
			logger.Error("scan failed closed", "direction", pvErr.Direction, "error", err)
			writeError(w, http.StatusInternalServerError, errorDetail{
				Message: "internal error",
				Type:    "internal_error",
			})
			return
		}
		code := "blocked_input"
		if pvErr.Direction == scan.DirectionOutput {
			code = "blocked_output"
		}
		writeError(w, http.StatusBadRequest, errorDetail{
			Message:  pvErr.Error(),
			Type:     "policy_violation",
			Code:     code,
			Scanners: decisionScanners(pvErr),
		})
		return
	}

	var upErr *openai.UpstreamError
	if errors.As(err, &upErr) {
		logger.Warn("upstream request failed", "status", upErr.Status, "error", upErr.Message)
		writeError(w, http.StatusBadGateway, errorDetail{
			Message: "upstream request failed: " + upErr.Message,
			Type:    "upstream_error",
		})
		return
	}

	logger.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, errorDetail{
		Message: "internal error",
		Type:    "internal_error",
	})
}

func writeError(w http.ResponseWriter, status int, detail errorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: detail})
}

// resolveIdentity determines who the request belongs to: an
// authenticated identity wins, then the X-User-ID header, then the
// payload "user" field, then "anonymous".
func resolveIdentity(r *http.Request, payload map[string]any) string {
	if id := AuthenticatedIdentity(r.Context()); id != "" {
		return id
	}
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	if user, ok := payload["user"].(string); ok && user != "" {
		return user
	}
	return "anonymous"
}

// syntheticBlock reports whether a block was caused solely by pipeline
// failures (scanner timeouts or errors) rather than by real findings.
func syntheticBlock(err *guard.PolicyViolationError) bool {
	if len(err.Decision.Findings) == 0 {
		return false
	}
	for _, f := range err.Decision.Findings {
		if !f.Synthetic() {
			return false
		}
	}
	return true
}

// decisionScanners lists the distinct scanners behind a block decision.
func decisionScanners(err *guard.PolicyViolationError) []string {
	seen := make(map[string]bool)
	var scanners []string
	for _, f := range err.Decision.Findings {
		if !seen[f.Scanner] {
			seen[f.Scanner] = true
			scanners = append(scanners, f.Scanner)
		}
	}
	return scanners
}
