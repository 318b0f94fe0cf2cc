package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/bondoverhobbies/internal/config"
	"github.com/noah-isme/bondoverhobbies/internal/database"
	"github.com/noah-isme/bondoverhobbies/internal/dto"
	"github.com/noah-isme/bondoverhobbies/internal/handler"
	"github.com/noah-isme/bondoverhobbies/internal/repository"
	"github.com/noah-isme/bondoverhobbies/internal/router"
	"github.com/noah-isme/bondoverhobbies/internal/security"
	"github.com/noah-isme/bondoverhobbies/internal/service"
	"github.com/noah-isme/bondoverhobbies/internal/utils"
	"github.com/noah-isme/bondoverhobbies/pkg/ai"
)

type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Errors  map[string]string `json:"errors"`
}

type assistantStub struct {
	prompt  string
	reply   string
	hobbies []string
	err     error
}

func (a assistantStub) SuggestConversationStarter(context.Context, ai.StarterInput) (string, error) {
	return a.prompt, a.err
}

func (a assistantStub) SupportiveReply(context.Context, []ai.Turn) (string, error) {
	return a.reply, a.err
}

func (a assistantStub) RecommendHobbies(context.Context, string) ([]string, error) {
	return a.hobbies, a.err
}

var errProviderDown = errors.New("provider down")

func setupHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:handler_%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// newTestApp wires the full API over an in-memory store and a node-local broker.
func newTestApp(t *testing.T, assistant ai.Assistant) *fiber.App {
	t.Helper()
	return newTestAppWithMessages(t, assistant, nil)
}

// newTestAppWithMessages is newTestApp with the channel handler's message
// service replaced by wrap(service).
func newTestAppWithMessages(t *testing.T, assistant ai.Assistant, wrap func(service.MessageService) service.MessageService) *fiber.App {
	t.Helper()
	logger := zerolog.Nop()
	db := setupHandlerDB(t)
	validate := utils.NewValidator()
	broker := service.NewBroker(service.BrokerOptions{}, logger)

	users := repository.NewUserRepository(db)
	communities := repository.NewCommunityRepository(db)
	messages := repository.NewMessageRepository(db)

	identity := service.NewIdentityService(service.IdentityDependencies{
		Credentials: repository.NewCredentialRepository(db),
		Users:       users,
		Hasher:      security.NewPasswordHasher(bcrypt.MinCost),
		Tokens:      security.NewTokenService("handler-secret", time.Hour),
		Broker:      broker,
		Validator:   validate,
	}, logger)
	communityService := service.NewCommunityService(communities, users, broker, validate, logger)
	var messageService service.MessageService = service.NewMessageService(messages, communities, broker, validate, logger)
	if wrap != nil {
		messageService = wrap(messageService)
	}
	assistantService := service.NewAssistantService(assistant, communities, messages, validate, time.Second, logger)
	uploadService := service.NewUploadService(nil, repository.NewUploadRepository(db), 1, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "test", AssistantRateLimit: 100}, router.Dependencies{
		Authenticator:    identity,
		AuthHandler:      handler.NewAuthHandler(identity, logger),
		ProfileHandler:   handler.NewProfileHandler(identity, logger),
		CommunityHandler: handler.NewCommunityHandler(communityService, identity, time.Second, logger),
		ChannelHandler:   handler.NewChannelHandler(messageService, identity, logger),
		AssistantHandler: handler.NewAssistantHandler(assistantService, logger),
		UploadHandler:    handler.NewUploadHandler(uploadService, logger),
	})
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body interface{}) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)

	var out envelope
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return resp, out
}

func decodeData(t *testing.T, env envelope, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, target))
}

func signUp(t *testing.T, app *fiber.App, name, email string) dto.SessionResponse {
	t.Helper()
	resp, env := doJSON(t, app, http.MethodPost, "/api/v1/auth/signup", "", dto.SignUpRequest{
		DisplayName: name,
		Email:       email,
		Password:    "password123",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, env.Message)

	var session dto.SessionResponse
	decodeData(t, env, &session)
	require.NotEmpty(t, session.Token)
	return session
}

func join(t *testing.T, app *fiber.App, token, id string) dto.CommunityResponse {
	t.Helper()
	resp, env := doJSON(t, app, http.MethodPost, "/api/v1/communities/"+id+"/join", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, env.Message)

	var community dto.CommunityResponse
	decodeData(t, env, &community)
	return community
}

// listen serves app on a loopback port for streaming and WebSocket tests.
func listen(t *testing.T, app *fiber.App) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.ShutdownWithTimeout(2 * time.Second) })
	return ln.Addr().String()
}
