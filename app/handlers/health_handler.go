package handlers

import (
	"context"
	"time"

	"github.com/amirphl/social-publisher/config"
	"github.com/amirphl/social-publisher/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const healthCheckTimeout = 3 * time.Second

// HealthCheck pings one dependency. A failing critical check makes the service unhealthy,
// a failing non-critical one only degrades it.
type HealthCheck struct {
	Name     string
	Critical bool
	Ping     func(ctx context.Context) error
}

// DatabaseCheck pings the postgres connection pool
func DatabaseCheck(db *gorm.DB) HealthCheck {
	return HealthCheck{
		Name:     "database",
		Critical: true,
		Ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
}

// RedisCheck pings the insights cache. The cache is optional so the check is not critical.
func RedisCheck(rc *redis.Client) HealthCheck {
	return HealthCheck{
		Name: "redis",
		Ping: func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		},
	}
}

type HealthHandler struct {
	baseHandler
	deployment config.DeploymentConfig
	checks     []HealthCheck
}

func NewHealthHandler(deployment config.DeploymentConfig, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{
		baseHandler: newBaseHandler(),
		deployment:  deployment,
		checks:      checks,
	}
}

// Health reports the state of every dependency
// @Summary Health Check
// @Tags Health
// @Produce json
// @Success 200 {object} dto.APIResponse
// @Failure 503 {object} dto.APIResponse
// @Router /api/v1/health [get]
func (h *HealthHandler) Health(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	status := "ok"
	results := fiber.Map{}
	for _, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			results[check.Name] = "down: " + err.Error()
			if check.Critical {
				status = "down"
			} else if status == "ok" {
				status = "degraded"
			}
			continue
		}
		results[check.Name] = "up"
	}

	data := fiber.Map{
		"status":      status,
		"checks":      results,
		"timestamp":   utils.UTCNow().Unix(),
		"version":     h.deployment.Version,
		"environment": h.deployment.Environment,
		"service":     "social-publisher",
	}
	if status == "down" {
		return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Service is unhealthy", "SERVICE_UNHEALTHY", data)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Service is healthy", data)
}
