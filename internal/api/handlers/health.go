// Package handlers provides HTTP handlers for the API.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/unifiedui/docdb-gateway/internal/api/dto"
	"github.com/unifiedui/docdb-gateway/internal/services/pool"
)

// PoolStatus is the part of the pool the health endpoints look at.
type PoolStatus interface {
	Stats() pool.Stats
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	pool        PoolStatus
	backend     string
	pingTimeout time.Duration
}

// NewHealthHandler creates a new HealthHandler. backend names the database
// driver in component output.
func NewHealthHandler(p PoolStatus, backend string) *HealthHandler {
	return &HealthHandler{
		pool:        p,
		backend:     backend,
		pingTimeout: 2 * time.Second,
	}
}

// Health handles the /_gateway/health endpoint.
// @Summary Health check
// @Description Returns the overall health status and pool statistics. The backend is pinged only when an idle connection is free
// @Tags Health
// @Produce json
// @Success 200 {object} dto.HealthResponse "Service healthy"
// @Failure 503 {object} dto.HealthResponse "Service unhealthy"
// @Router /_gateway/health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.pingTimeout)
	defer cancel()

	components := make(map[string]string)
	healthy := true

	stats := h.pool.Stats()
	switch {
	case stats.State != pool.StateReady:
		healthy = false
	case stats.Idle == 0:
		// every connection is busy; a ping would queue behind queries
	default:
		if err := h.pool.Ping(ctx); err != nil {
			healthy = false
		}
	}

	components[h.backend] = "healthy"
	if !healthy {
		components[h.backend] = "unhealthy"
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, dto.HealthResponse{
		Status:     status,
		Components: components,
		Pool: &dto.PoolStatusResponse{
			State:   stats.State.String(),
			Open:    stats.Open,
			Idle:    stats.Idle,
			InUse:   stats.InUse,
			Waiting: stats.Waiting,
		},
	})
}

// Ready handles the /_gateway/ready endpoint.
// @Summary Readiness check
// @Description Returns 200 while the connection pool can reach the backend
// @Tags Health
// @Produce json
// @Success 200 {object} dto.StatusResponse "Service ready"
// @Failure 503 {object} dto.StatusResponse "Service not ready"
// @Router /_gateway/ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	if state := h.pool.Stats().State; state != pool.StateReady {
		c.JSON(http.StatusServiceUnavailable, dto.StatusResponse{
			Status: "not ready",
			Reason: "pool " + state.String(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.StatusResponse{
		Status: "ready",
	})
}

// Live handles the /_gateway/live endpoint.
// @Summary Liveness check
// @Description Returns 200 if the service is alive
// @Tags Health
// @Produce json
// @Success 200 {object} dto.StatusResponse "Service alive"
// @Router /_gateway/live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, dto.StatusResponse{
		Status: "alive",
	})
}
