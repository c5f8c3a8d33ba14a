package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"orvit/internal/infrastructure/storage/postgres"
)

// Prober is the database view the health endpoints need.
type Prober interface {
	Ready(ctx context.Context) error
	Stats() postgres.PoolStats
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	db Prober
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db Prober) *HealthHandler {
	return &HealthHandler{db: db}
}

// Live handles the liveness probe.
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles the readiness probe.
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if err := h.db.Ready(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "error",
			"checks": map[string]string{"database": "unhealthy: " + err.Error()},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"checks": map[string]string{"database": "healthy"},
		"pool":   h.db.Stats(),
	})
}
