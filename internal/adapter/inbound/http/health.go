package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/toolwarden/toolwarden/internal/adapter/outbound/memory"
	"github.com/toolwarden/toolwarden/internal/service"
)

// HealthResponse is the JSON response from the /healthz endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// HealthChecker verifies component health.
type HealthChecker struct {
	sessions *memory.SessionStore
	limiter  *memory.SlidingWindowLimiter
	audits   *service.AuditService
	version  string
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(
	sessions *memory.SessionStore,
	limiter *memory.SlidingWindowLimiter,
	audits *service.AuditService,
	version string,
) *HealthChecker {
	return &HealthChecker{
		sessions: sessions,
		limiter:  limiter,
		audits:   audits,
		version:  version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	// Size() acquires the store lock - if this hangs, we have a problem
	if h.sessions != nil {
		checks["sessions"] = fmt.Sprintf("ok: %d active", h.sessions.Size())
	} else {
		checks["sessions"] = "not configured"
	}

	if h.limiter != nil {
		checks["rate_limiter"] = fmt.Sprintf("ok: %d keys", h.limiter.Size())
	} else {
		checks["rate_limiter"] = "not configured"
	}

	// Audit queue depth is the backpressure signal
	if h.audits != nil {
		depth := h.audits.ChannelDepth()
		capacity := h.audits.ChannelCapacity()
		percentFull := 0
		if capacity > 0 {
			percentFull = depth * 100 / capacity
		}

		if percentFull > 90 {
			// >90% full means the queue is about to drop entries
			checks["audit"] = fmt.Sprintf("degraded: %d/%d (%d%%)", depth, capacity, percentFull)
			healthy = false
		} else {
			checks["audit"] = fmt.Sprintf("ok: %d/%d (%d%%)", depth, capacity, percentFull)
		}

		if drops := h.audits.DroppedEntries(); drops > 0 {
			checks["audit_drops"] = fmt.Sprintf("%d dropped", drops)
		}
	} else {
		checks["audit"] = "not configured"
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

// Handler returns the HTTP handler for the health endpoint.
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
