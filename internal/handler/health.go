package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/asciimotion/api/internal/model"
	"github.com/asciimotion/api/internal/service"
	"github.com/asciimotion/api/pkg/response"
)

type HealthHandler struct {
	service *service.ConvertService
}

func NewHealthHandler(svc *service.ConvertService) *HealthHandler {
	return &HealthHandler{service: svc}
}

// Health handles GET /health: admission health plus job stats. The HTTP
// status tracks the health level so load balancers can act on it.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	health := h.service.Health()
	stats := h.service.Stats()

	status := fiber.StatusOK
	if health.Status == model.HealthCritical {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"status":    health.Status,
		"admission": health,
		"jobs":      stats,
	})
}

// Stats handles GET /api/convert/stats
func (h *HealthHandler) Stats(c *fiber.Ctx) error {
	return response.OK(c, h.service.Stats())
}
