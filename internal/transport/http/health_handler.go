package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"nexuscli/internal/config"
)

// HealthHandler serves liveness information for the local surface.
type HealthHandler struct {
	startedAt time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{startedAt: time.Now()}
}

// Health handles GET /api/health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"status":    "healthy",
		"product":   config.ProductName,
		"version":   config.ProductVersion,
		"uptime":    time.Since(h.startedAt).String(),
		"timestamp": time.Now(),
	})
}
