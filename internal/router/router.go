package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/bondoverhobbies/internal/config"
	"github.com/noah-isme/bondoverhobbies/internal/handler"
	"github.com/noah-isme/bondoverhobbies/internal/middleware"
	"github.com/noah-isme/bondoverhobbies/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	Authenticator    middleware.Authenticator
	AuthHandler      *handler.AuthHandler
	ProfileHandler   *handler.ProfileHandler
	CommunityHandler *handler.CommunityHandler
	ChannelHandler   *handler.ChannelHandler
	AssistantHandler *handler.AssistantHandler
	UploadHandler    *handler.UploadHandler
	Features         map[string]bool
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Features))

	var requireAuth fiber.Handler = func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusServiceUnavailable, "authentication not configured")
	}
	if deps.Authenticator != nil {
		requireAuth = middleware.RequireAuth(deps.Authenticator)
	}

	if deps.AuthHandler != nil {
		deps.AuthHandler.Register(api.Group("/auth"), requireAuth)
	}

	if deps.ProfileHandler != nil {
		deps.ProfileHandler.Register(api.Group("/me", requireAuth))
	}

	assistantLimit := middleware.RateLimit("assistant", cfg.AssistantRateLimit, time.Minute)

	communities := api.Group("/communities", requireAuth)
	if deps.CommunityHandler != nil {
		deps.CommunityHandler.Register(communities)
	}

	channels := communities.Group("/:id/channels")
	if deps.ChannelHandler != nil {
		deps.ChannelHandler.Register(channels)
	}

	if deps.AssistantHandler != nil {
		deps.AssistantHandler.RegisterChannel(channels, assistantLimit)
		deps.AssistantHandler.Register(api.Group("/assistant", requireAuth, assistantLimit))
	}

	if deps.UploadHandler != nil {
		deps.UploadHandler.Register(api.Group("/attachments", requireAuth))
	}
}
