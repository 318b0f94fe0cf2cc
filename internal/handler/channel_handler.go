package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bondoverhobbies/internal/dto"
	"github.com/noah-isme/bondoverhobbies/internal/middleware"
	"github.com/noah-isme/bondoverhobbies/internal/observability"
	"github.com/noah-isme/bondoverhobbies/internal/service"
	"github.com/noah-isme/bondoverhobbies/internal/utils"
)

// WebSocket close codes sent to channel subscribers.
const (
	CloseUnauthenticated = 4401
	CloseNotFound        = 4404
	CloseResync          = 4409
	CloseInternal        = 4500
)

const wsWriteTimeout = 10 * time.Second

// ChannelHandler serves channel message logs over REST and WebSocket.
type ChannelHandler struct {
	messages service.MessageService
	identity service.SessionSource
	logger   zerolog.Logger
}

// NewChannelHandler constructs a channel handler.
func NewChannelHandler(messages service.MessageService, identity service.SessionSource, logger zerolog.Logger) *ChannelHandler {
	return &ChannelHandler{
		messages: messages,
		identity: identity,
		logger:   logger.With().Str("component", "channel_handler").Logger(),
	}
}

// Register wires channel routes under /communities/:id/channels.
func (h *ChannelHandler) Register(router fiber.Router) {
	router.Get("/:channel/messages", h.history)
	router.Post("/:channel/messages", h.send)

	router.Use("/:channel/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/:channel/ws", websocket.New(h.serve))
}

func (h *ChannelHandler) history(c *fiber.Ctx) error {
	query := dto.MessageHistoryQuery{
		CommunityID: strings.TrimSpace(c.Params("id")),
		Channel:     strings.TrimSpace(c.Params("channel")),
	}

	if before := strings.TrimSpace(c.Query("before")); before != "" {
		parsed, err := time.Parse(time.RFC3339Nano, before)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid before timestamp")
		}
		query.Before = &parsed
	}
	if beforeID := strings.TrimSpace(c.Query("before_id")); beforeID != "" {
		parsed, err := strconv.ParseUint(beforeID, 10, 64)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid before_id")
		}
		query.BeforeID = uint(parsed)
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	query.Limit = limit

	messages, err := h.messages.History(c.UserContext(), query)
	if err != nil {
		return writeError(c, h.logger, err, "failed to load messages")
	}
	return utils.SendSuccess(c, "messages retrieved", messages)
}

func (h *ChannelHandler) send(c *fiber.Ctx) error {
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	sender := senderFromPrincipal(middleware.PrincipalFromContext(c))
	ack, err := h.messages.Send(c.UserContext(), sender, strings.TrimSpace(c.Params("id")), strings.TrimSpace(c.Params("channel")), req)
	if err != nil {
		return writeError(c, h.logger, err, "failed to send message")
	}
	if ack == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message sent", ack)
}

// serve streams the channel snapshot and live appends to one client and
// accepts send frames from it. The stream ends when the client disconnects,
// its session signs out or its feed falls behind.
func (h *ChannelHandler) serve(conn *websocket.Conn) {
	principal, _ := conn.Locals("principal").(*service.Principal)
	if principal == nil {
		closeSocket(conn, CloseUnauthenticated, service.ErrUnauthenticated.Error())
		return
	}

	communityID := strings.TrimSpace(conn.Params("id"))
	channel := strings.TrimSpace(conn.Params("channel"))
	logger := h.logger.With().
		Str("uid", principal.UID).
		Str("community_id", communityID).
		Str("channel", channel).
		Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := service.NewIdentityContext(ctx, h.identity, *principal, logger)
	defer session.Close()
	session.OnSignOut(cancel)

	feed, err := h.messages.Subscribe(ctx, communityID, channel)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCommunityNotFound), errors.Is(err, service.ErrChannelNotFound):
			closeSocket(conn, CloseNotFound, err.Error())
		default:
			logger.Error().Err(err).Msg("failed to subscribe to channel")
			closeSocket(conn, CloseInternal, "subscription failed")
		}
		return
	}
	defer feed.Close()

	observability.WebSocketConnections().Inc()
	logger.Info().Msg("channel websocket connected")
	defer logger.Info().Msg("channel websocket disconnected")

	writer := &frameWriter{conn: conn}
	if err := writer.write(dto.ChannelFrame{Type: dto.FrameSnapshot, Messages: feed.Snapshot}); err != nil {
		writer.close(websocket.CloseNormalClosure, "")
		return
	}

	// The connection goes back to the pool once serve returns, so the reader
	// must be gone by then.
	var reader sync.WaitGroup
	reader.Add(1)
	go func() {
		defer reader.Done()
		h.readFrames(ctx, cancel, conn, writer, senderFromPrincipal(principal), communityID, channel, logger)
	}()

	code, reason := h.pump(ctx, feed, writer, session)
	writer.close(code, reason)
	cancel()
	reader.Wait()
}

// pump forwards live messages until the feed ends and returns the close
// frame to send.
func (h *ChannelHandler) pump(ctx context.Context, feed *service.MessageFeed, writer *frameWriter, session *service.IdentityContext) (int, string) {
	for {
		message, err := feed.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrSubscriptionClosed):
				return CloseResync, "subscription fell behind, resubscribe"
			case isClosed(session.SignedOut()):
				return CloseUnauthenticated, "signed out"
			default:
				return websocket.CloseNormalClosure, ""
			}
		}
		if err := writer.write(dto.ChannelFrame{Type: dto.FrameMessage, Message: &message}); err != nil {
			return websocket.CloseNormalClosure, ""
		}
	}
}

func (h *ChannelHandler) readFrames(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, writer *frameWriter, sender *service.Sender, communityID, channel string, logger zerolog.Logger) {
	defer cancel()

	for {
		var req dto.SendMessageRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("channel websocket read ended")
			}
			return
		}

		ack, err := h.messages.Send(ctx, sender, communityID, channel, req)
		var reply *dto.ChannelFrame
		switch {
		case err != nil:
			if !isValidationError(err) && !errors.Is(err, service.ErrChannelNotFound) && ctx.Err() == nil {
				logger.Error().Err(err).Msg("failed to send message")
			}
			reply = &dto.ChannelFrame{Type: dto.FrameError, Error: sendFailure(err)}
		case ack != nil:
			reply = &dto.ChannelFrame{Type: dto.FrameAck, Ack: ack}
		}
		if reply != nil {
			if err := writer.write(*reply); errors.Is(err, errWriterClosed) {
				return
			}
		}
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func sendFailure(err error) string {
	switch {
	case isValidationError(err):
		return "message is invalid"
	case errors.Is(err, service.ErrChannelNotFound), errors.Is(err, service.ErrCommunityNotFound):
		return err.Error()
	default:
		return "failed to send message"
	}
}

var errWriterClosed = errors.New("websocket writer closed")

// frameWriter serialises writes of the read and write loops and refuses
// writes once the socket was closed.
type frameWriter struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (w *frameWriter) write(frame dto.ChannelFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errWriterClosed
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteJSON(frame)
}

func (w *frameWriter) close(code int, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	closeSocket(w.conn, code, reason)
}

func closeSocket(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}
