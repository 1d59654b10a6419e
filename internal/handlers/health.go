package handlers

import (
	"time"

	"acey/internal/engine"
	"acey/internal/services"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	connManager *services.ConnectionManager
	engine      *engine.Engine
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(connManager *services.ConnectionManager, eng *engine.Engine) *HealthHandler {
	return &HealthHandler{connManager: connManager, engine: eng}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	stats := h.engine.GetStatistics()
	return c.JSON(fiber.Map{
		"status":      "healthy",
		"connections": h.connManager.Count(),
		"pending":     stats.Pending,
		"processed":   stats.Processed,
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}
