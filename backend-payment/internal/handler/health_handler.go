package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker is a dependency that can report its health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	components map[string]HealthChecker
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(components map[string]HealthChecker) *HealthHandler {
	if components == nil {
		components = map[string]HealthChecker{}
	}
	return &HealthHandler{components: components}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready. The blockchain node counts as a component, so
// the service stops taking validations while the node is down.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	components := make(map[string]string, len(h.components))
	status := http.StatusOK
	for name, checker := range h.components {
		if err := checker.HealthCheck(ctx); err != nil {
			components[name] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "healthy"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	c.JSON(status, gin.H{
		"status":     state,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"components": components,
	})
}
