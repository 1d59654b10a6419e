package handlers

import (
	"errors"
	"time"

	"acey/internal/engine"
	"acey/internal/models"
	"acey/internal/safety"
	"acey/internal/services"
	"acey/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// IntentHandler exposes the governance pipeline over HTTP.
type IntentHandler struct {
	engine    *engine.Engine
	safety    *safety.System
	validator *validation.Validator
}

// NewIntentHandler creates a new intent handler
func NewIntentHandler(eng *engine.Engine, safetySystem *safety.System, validator *validation.Validator) *IntentHandler {
	return &IntentHandler{engine: eng, safety: safetySystem, validator: validator}
}

// ProcessOutput handles POST /api/output — one raw model output in, the
// processing verdict out. Validation failures are 200s with success=false:
// a misbehaving model is an expected input, not a server error.
func (h *IntentHandler) ProcessOutput(c *fiber.Ctx) error {
	reqCtx := models.RequestContext{
		Source:     c.Query("source", "api"),
		Role:       c.Query("role"),
		TrustLevel: c.Query("trustLevel"),
	}
	started := time.Now()
	result := h.engine.ProcessOutput(c.Context(), c.Body(), reqCtx)

	if m := services.GetMetrics(); m != nil {
		for _, r := range result.Results {
			m.IntentsProcessed.WithLabelValues(string(r.Type)).Inc()
			m.IntentsExecuted.WithLabelValues(string(r.Type), string(r.Status)).Inc()
		}
		m.ExecutionLatency.Observe(time.Since(started).Seconds())
	}

	return c.JSON(result)
}

// GetPending handles GET /api/intents/pending
func (h *IntentHandler) GetPending(c *fiber.Ctx) error {
	pending := h.engine.GetPendingIntents()
	return c.JSON(fiber.Map{
		"pending": pending,
		"count":   len(pending),
	})
}

// Approve handles POST /api/intents/:id/approve
func (h *IntentHandler) Approve(c *fiber.Ctx) error {
	id := c.Params("id")
	result, err := h.engine.ApproveIntent(c.Context(), id)
	if err != nil {
		return intentError(c, err)
	}
	return c.JSON(result)
}

// Reject handles POST /api/intents/:id/reject
func (h *IntentHandler) Reject(c *fiber.Ctx) error {
	id := c.Params("id")

	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil || body.Reason == "" {
		body.Reason = "Rejected by operator"
	}

	if err := h.engine.RejectIntent(id, body.Reason); err != nil {
		return intentError(c, err)
	}
	return c.JSON(fiber.Map{"intentId": id, "status": "rejected", "reason": body.Reason})
}

// Simulate handles POST /api/intents/:id/simulate
func (h *IntentHandler) Simulate(c *fiber.Ctx) error {
	id := c.Params("id")
	result, err := h.engine.SimulateIntent(c.Context(), id)
	if err != nil {
		return intentError(c, err)
	}
	return c.JSON(result)
}

// GetStatistics handles GET /api/statistics
func (h *IntentHandler) GetStatistics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"engine":     h.engine.GetStatistics(),
		"validation": h.validator.Statistics(),
		"safety":     h.safety.Statistics(),
	})
}

// ExportHistory handles GET /api/history/export?format=json|csv
func (h *IntentHandler) ExportHistory(c *fiber.Ctx) error {
	format := c.Query("format", "json")
	data, err := h.engine.ExportHistory(format)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if format == "csv" {
		c.Set(fiber.HeaderContentType, "text/csv")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="execution_history.csv"`)
	} else {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	return c.Send(data)
}

// GetAuditLog handles GET /api/audit — the in-memory audit ring for the
// operator console.
func (h *IntentHandler) GetAuditLog(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"entries": h.safety.AuditEntries(),
		"safety":  h.safety.SafetyEntries(),
	})
}

func intentError(c *fiber.Ctx, err error) error {
	if errors.Is(err, engine.ErrIntentNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
