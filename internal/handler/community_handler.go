package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bondoverhobbies/internal/dto"
	"github.com/noah-isme/bondoverhobbies/internal/middleware"
	"github.com/noah-isme/bondoverhobbies/internal/service"
	"github.com/noah-isme/bondoverhobbies/internal/utils"
)

// CommunityHandler exposes the community directory.
type CommunityHandler struct {
	service   service.CommunityService
	identity  service.SessionSource
	keepAlive time.Duration
	logger    zerolog.Logger
}

// NewCommunityHandler constructs a community handler.
func NewCommunityHandler(service service.CommunityService, identity service.SessionSource, keepAlive time.Duration, logger zerolog.Logger) *CommunityHandler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	return &CommunityHandler{
		service:   service,
		identity:  identity,
		keepAlive: keepAlive,
		logger:    logger.With().Str("component", "community_handler").Logger(),
	}
}

// Register wires community routes.
func (h *CommunityHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Get("/:id/stream", h.stream)
	router.Post("/:id/join", h.join)
	router.Post("/:id/channels", h.createChannel)
}

func (h *CommunityHandler) list(c *fiber.Ctx) error {
	communities, err := h.service.ListForUser(c.UserContext(), middleware.PrincipalFromContext(c))
	if err != nil {
		return writeError(c, h.logger, err, "failed to list communities")
	}
	return utils.SendSuccess(c, "communities retrieved", communities)
}

func (h *CommunityHandler) get(c *fiber.Ctx) error {
	community, err := h.service.Get(c.UserContext(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return writeError(c, h.logger, err, "failed to load community")
	}
	return utils.SendSuccess(c, "community retrieved", community)
}

func (h *CommunityHandler) join(c *fiber.Ctx) error {
	var req dto.JoinCommunityRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	community, err := h.service.Join(c.UserContext(), middleware.PrincipalFromContext(c), strings.TrimSpace(c.Params("id")), req)
	if err != nil {
		return writeError(c, h.logger, err, "failed to join community")
	}
	return utils.SendSuccess(c, "joined community", community)
}

func (h *CommunityHandler) createChannel(c *fiber.Ctx) error {
	var req dto.CreateChannelRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	channel, err := h.service.CreateChannel(c.UserContext(), middleware.PrincipalFromContext(c), strings.TrimSpace(c.Params("id")), req)
	if err != nil {
		return writeError(c, h.logger, err, "failed to create channel")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "channel created", channel)
}

// stream sends the community snapshot followed by every update as
// server-sent events. Not-found is reported before the stream starts; the
// stream ends with a signed_out event when the caller's session ends.
func (h *CommunityHandler) stream(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromContext(c)
	if principal == nil {
		return writeError(c, h.logger, service.ErrUnauthenticated, "failed to watch community")
	}

	ctx, cancel := context.WithCancel(context.Background())

	feed, err := h.service.Watch(ctx, strings.TrimSpace(c.Params("id")))
	if err != nil {
		cancel()
		return writeError(c, h.logger, err, "failed to watch community")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	logger := requestLogger(h.logger, c).With().Str("community_id", feed.Snapshot.ID).Logger()
	session := service.NewIdentityContext(ctx, h.identity, *principal, logger)
	session.OnSignOut(cancel)

	updates := make(chan dto.CommunityResponse)
	go func() {
		defer close(updates)
		for {
			community, err := feed.Next(ctx)
			if err != nil {
				return
			}
			select {
			case updates <- community:
			case <-ctx.Done():
				return
			}
		}
	}()

	snapshot := feed.Snapshot
	keepAlive := h.keepAlive

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			cancel()
			session.Close()
			feed.Close()
		}()

		if err := writeEvent(w, "community", snapshot); err != nil {
			logger.Debug().Err(err).Msg("failed to write community snapshot")
			return
		}

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		for {
			select {
			case community, ok := <-updates:
				if !ok {
					// Feed fell behind or closed; the client reconnects for a fresh snapshot.
					h.endStream(w, session, snapshot.ID)
					return
				}
				if err := writeEvent(w, "community", community); err != nil {
					logger.Debug().Err(err).Msg("failed to write community event")
					return
				}
			case <-ticker.C:
				if err := writeKeepAlive(w); err != nil {
					logger.Debug().Err(err).Msg("failed to write community keepalive")
					return
				}
			case <-ctx.Done():
				h.endStream(w, session, snapshot.ID)
				return
			}
		}
	})

	return nil
}

func (h *CommunityHandler) endStream(w *bufio.Writer, session *service.IdentityContext, id string) {
	if isClosed(session.SignedOut()) {
		_ = writeEvent(w, "signed_out", fiber.Map{"id": id})
		return
	}
	_ = writeEvent(w, "resync", fiber.Map{"id": id})
}

func writeEvent(w *bufio.Writer, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}

func writeKeepAlive(w *bufio.Writer) error {
	if _, err := fmt.Fprintf(w, ": keep-alive %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return w.Flush()
}
