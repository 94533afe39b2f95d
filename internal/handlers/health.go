package handlers

import (
	"time"

	"talkasaurus/internal/database"
	"talkasaurus/internal/services"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db    *database.MongoDB
	redis *services.RedisService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.MongoDB, redis *services.RedisService) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// Handle responds with server health status. Degraded dependencies turn the
// response into a 503 so the orchestrator can act on it.
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	status := "healthy"
	code := fiber.StatusOK

	mongoStatus := "up"
	if err := h.db.Ping(c.Context()); err != nil {
		mongoStatus = "down"
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}

	redisStatus := "up"
	if err := h.redis.Ping(c.Context()); err != nil {
		redisStatus = "down"
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
