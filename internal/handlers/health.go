package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"chatnil/internal/database"
	"chatnil/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	mongodb *database.MongoDB
	redis   *services.RedisService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(mongodb *database.MongoDB, redisService *services.RedisService) *HealthHandler {
	return &HealthHandler{mongodb: mongodb, redis: redisService}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	mongoStatus := "healthy"
	if err := h.mongodb.Ping(c.Context()); err != nil {
		mongoStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if err := h.redis.Ping(c.Context()); err != nil {
		redisStatus = "unhealthy"
	}

	status := "healthy"
	code := fiber.StatusOK
	if mongoStatus != "healthy" || redisStatus != "healthy" {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"mongodb":   mongoStatus,
		"redis":     redisStatus,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
