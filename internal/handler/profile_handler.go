package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bondoverhobbies/internal/dto"
	"github.com/noah-isme/bondoverhobbies/internal/middleware"
	"github.com/noah-isme/bondoverhobbies/internal/service"
	"github.com/noah-isme/bondoverhobbies/internal/utils"
)

// ProfileHandler serves the caller's profile record.
type ProfileHandler struct {
	identity service.IdentityService
	logger   zerolog.Logger
}

// NewProfileHandler constructs a profile handler.
func NewProfileHandler(identity service.IdentityService, logger zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{
		identity: identity,
		logger:   logger.With().Str("component", "profile_handler").Logger(),
	}
}

// Register wires profile routes.
func (h *ProfileHandler) Register(router fiber.Router) {
	router.Get("", h.get)
	router.Post("/hobbies", h.addHobby)
}

func (h *ProfileHandler) get(c *fiber.Ctx) error {
	profile, err := h.identity.GetProfile(c.UserContext(), middleware.PrincipalFromContext(c))
	if err != nil {
		return writeError(c, h.logger, err, "failed to load profile")
	}
	return utils.SendSuccess(c, "profile retrieved", profile)
}

func (h *ProfileHandler) addHobby(c *fiber.Ctx) error {
	var req dto.AddHobbyRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	profile, err := h.identity.AddHobby(c.UserContext(), middleware.PrincipalFromContext(c), req)
	if err != nil {
		return writeError(c, h.logger, err, "failed to add hobby")
	}
	return utils.SendSuccess(c, "hobby added", profile)
}
