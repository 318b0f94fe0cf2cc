package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/bondoverhobbies/internal/config"
	"github.com/noah-isme/bondoverhobbies/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string          `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
	Service     string          `json:"service"`
	Environment string          `json:"environment"`
	Features    map[string]bool `json:"features"`
}

// HealthCheck returns a handler that reports application health information.
// features lists optional collaborators and whether they are configured.
func HealthCheck(cfg config.Config, features map[string]bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Features:    features,
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
