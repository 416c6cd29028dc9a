package api

import (
	"context"
	"time"

	"github.com/modelgate/credential-engine/internal/config"
	"github.com/modelgate/credential-engine/internal/services/database"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	cfg         *config.Config
	redisClient *redis.Client
	db          *database.DB
}

func NewHealthHandler(cfg *config.Config, redisClient *redis.Client, db *database.DB) *HealthHandler {
	return &HealthHandler{
		cfg:         cfg,
		redisClient: redisClient,
		db:          db,
	}
}

// HealthCheck returns the health status of the service and its dependencies
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	databaseStatus := h.checkDatabase()
	redisStatus := h.checkRedis()

	overallStatus := "healthy"
	statusCode := fiber.StatusOK
	if databaseStatus == "unhealthy" || redisStatus == "unhealthy" {
		overallStatus = "degraded"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": fiber.Map{
			"database": databaseStatus,
			"redis":    redisStatus,
		},
	})
}

func (h *HealthHandler) checkDatabase() string {
	if h.db == nil {
		return "not_configured"
	}
	if err := h.db.Ping(); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

func (h *HealthHandler) checkRedis() string {
	if h.redisClient == nil {
		return "not_configured"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		return "unhealthy"
	}
	return "healthy"
}
