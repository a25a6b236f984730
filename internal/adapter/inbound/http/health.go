package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/aisafe-dev/aisafegate/internal/adapter/outbound/memory"
	"github.com/aisafe-dev/aisafegate/internal/service"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// HealthChecker verifies component health.
type HealthChecker struct {
	rateLimiter *memory.TokenBucketLimiter
	telemetry   *service.TelemetryService
	version     string
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(
	rateLimiter *memory.TokenBucketLimiter,
	telemetry *service.TelemetryService,
	version string,
) *HealthChecker {
	return &HealthChecker{
		rateLimiter: rateLimiter,
		telemetry:   telemetry,
		version:     version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.rateLimiter != nil {
		// Size() acquires the lock; if this hangs, we have a problem
		checks["rate_limiter"] = fmt.Sprintf("ok: %d buckets", h.rateLimiter.Size())
	} else {
		checks["rate_limiter"] = "not configured"
	}

	if h.telemetry != nil {
		depth := h.telemetry.ChannelDepth()
		capacity := h.telemetry.ChannelCapacity()
		percentFull := 0
		if capacity > 0 {
			percentFull = depth * 100 / capacity
		}

		if percentFull > 90 {
			// >90% full means the writer is not keeping up
			checks["telemetry"] = fmt.Sprintf("degraded: %d/%d (%d%%)", depth, capacity, percentFull)
			healthy = false
		} else {
			checks["telemetry"] = fmt.Sprintf("ok: %d/%d (%d%%)", depth, capacity, percentFull)
		}

		if drops := h.telemetry.DroppedEvents(); drops > 0 {
			checks["telemetry_drops"] = fmt.Sprintf("%d dropped", drops)
		}
	} else {
		checks["telemetry"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
