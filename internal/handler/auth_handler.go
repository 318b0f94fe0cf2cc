package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bondoverhobbies/internal/dto"
	"github.com/noah-isme/bondoverhobbies/internal/middleware"
	"github.com/noah-isme/bondoverhobbies/internal/service"
	"github.com/noah-isme/bondoverhobbies/internal/utils"
)

// AuthHandler exposes sign-up, sign-in and sign-out.
type AuthHandler struct {
	identity service.IdentityService
	logger   zerolog.Logger
}

// NewAuthHandler constructs an auth handler.
func NewAuthHandler(identity service.IdentityService, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		identity: identity,
		logger:   logger.With().Str("component", "auth_handler").Logger(),
	}
}

// Register wires the auth routes. requireAuth guards sign-out only.
func (h *AuthHandler) Register(router fiber.Router, requireAuth fiber.Handler) {
	router.Post("/signup", h.signUp)
	router.Post("/signin", h.signIn)
	router.Post("/signout", requireAuth, h.signOut)
}

func (h *AuthHandler) signUp(c *fiber.Ctx) error {
	var req dto.SignUpRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	session, err := h.identity.SignUp(c.UserContext(), req)
	if err != nil {
		return writeError(c, h.logger, err, "failed to create account")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "account created", session)
}

func (h *AuthHandler) signIn(c *fiber.Ctx) error {
	var req dto.SignInRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	session, err := h.identity.SignIn(c.UserContext(), req)
	if err != nil {
		return writeError(c, h.logger, err, "failed to sign in")
	}

	return utils.SendSuccess(c, "signed in", session)
}

func (h *AuthHandler) signOut(c *fiber.Ctx) error {
	token := middleware.TokenFromContext(c)
	if token == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, service.ErrUnauthenticated.Error())
	}

	if err := h.identity.SignOut(c.UserContext(), token); err != nil {
		return writeError(c, h.logger, err, "failed to sign out")
	}

	return utils.SendSuccess(c, "signed out", nil)
}
