package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/appLSI/decentralized-rental-app-sub000/backend-booking/internal/worker"
	"github.com/gin-gonic/gin"
)

// HealthChecker is a dependency that can report its health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatsProvider exposes expiry worker statistics
type StatsProvider interface {
	GetStats() *worker.ExpiryWorkerStats
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	components map[string]HealthChecker
	worker     StatsProvider
}

// NewHealthHandler creates a new HealthHandler. Components that are not
// configured are left out of components.
func NewHealthHandler(components map[string]HealthChecker, worker StatsProvider) *HealthHandler {
	if components == nil {
		components = map[string]HealthChecker{}
	}
	return &HealthHandler{components: components, worker: worker}
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadyResponse represents readiness check response
type ReadyResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components"`
}

// Health returns a simple health check (liveness probe)
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready returns a readiness check (readiness probe)
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	components := make(map[string]string, len(h.components))
	allHealthy := true

	for name, checker := range h.components {
		if err := checker.HealthCheck(ctx); err != nil {
			components[name] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			components[name] = "healthy"
		}
	}

	response := ReadyResponse{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Components: components,
	}

	if allHealthy {
		response.Status = "ready"
		c.JSON(http.StatusOK, response)
	} else {
		response.Status = "not ready"
		c.JSON(http.StatusServiceUnavailable, response)
	}
}

// WorkerStats handles GET /internal/v1/worker/stats
func (h *HealthHandler) WorkerStats(c *gin.Context) {
	if h.worker == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "expiry worker not running", "code": "WORKER_DISABLED"})
		return
	}
	c.JSON(http.StatusOK, h.worker.GetStats())
}
