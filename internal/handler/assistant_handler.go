package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bondoverhobbies/internal/dto"
	"github.com/noah-isme/bondoverhobbies/internal/middleware"
	"github.com/noah-isme/bondoverhobbies/internal/service"
	"github.com/noah-isme/bondoverhobbies/internal/utils"
)

// AssistantHandler exposes the text-generation helpers.
type AssistantHandler struct {
	service service.AssistantService
	logger  zerolog.Logger
}

// NewAssistantHandler constructs an assistant handler.
func NewAssistantHandler(service service.AssistantService, logger zerolog.Logger) *AssistantHandler {
	return &AssistantHandler{
		service: service,
		logger:  logger.With().Str("component", "assistant_handler").Logger(),
	}
}

// RegisterChannel wires the conversation starter under /communities/:id/channels.
func (h *AssistantHandler) RegisterChannel(router fiber.Router, middlewares ...fiber.Handler) {
	router.Post("/:channel/assistant", append(middlewares, h.starter)...)
}

// Register wires the standalone assistant routes.
func (h *AssistantHandler) Register(router fiber.Router) {
	router.Post("/support", h.support)
	router.Post("/hobbies", h.hobbies)
}

func (h *AssistantHandler) starter(c *fiber.Ctx) error {
	var req dto.ConversationStarterRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	result, err := h.service.SuggestStarter(
		c.UserContext(),
		middleware.PrincipalFromContext(c),
		strings.TrimSpace(c.Params("id")),
		strings.TrimSpace(c.Params("channel")),
		req,
	)
	if err != nil {
		return writeError(c, h.logger, err, "failed to suggest a conversation starter")
	}
	return utils.SendSuccess(c, "conversation starter generated", result)
}

func (h *AssistantHandler) support(c *fiber.Ctx) error {
	var req dto.SupportChatRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.SupportChat(c.UserContext(), req)
	if err != nil {
		return writeError(c, h.logger, err, "failed to generate a reply")
	}
	return utils.SendSuccess(c, "reply generated", result)
}

func (h *AssistantHandler) hobbies(c *fiber.Ctx) error {
	var req dto.HobbyRecommendationRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.RecommendHobbies(c.UserContext(), req)
	if err != nil {
		return writeError(c, h.logger, err, "failed to recommend hobbies")
	}
	return utils.SendSuccess(c, "hobbies recommended", result)
}
