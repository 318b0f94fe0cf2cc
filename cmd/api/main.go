package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bondoverhobbies/internal/config"
	"github.com/noah-isme/bondoverhobbies/internal/database"
	"github.com/noah-isme/bondoverhobbies/internal/handler"
	"github.com/noah-isme/bondoverhobbies/internal/middleware"
	"github.com/noah-isme/bondoverhobbies/internal/repository"
	"github.com/noah-isme/bondoverhobbies/internal/router"
	"github.com/noah-isme/bondoverhobbies/internal/security"
	"github.com/noah-isme/bondoverhobbies/internal/service"
	"github.com/noah-isme/bondoverhobbies/internal/utils"
	"github.com/noah-isme/bondoverhobbies/pkg/ai"
	cloud "github.com/noah-isme/bondoverhobbies/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "development" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	rootCtx, stopRoot := context.WithCancel(context.Background())
	defer stopRoot()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(rootCtx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis not configured, token revocation stays on this node")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName+"-"+uuid.NewString()[:8])
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer drainNATS(natsConn, logger)
	}

	broker := service.NewBroker(service.BrokerOptions{
		Redis:       redisClient,
		NATS:        natsConn,
		ChannelBase: cfg.RealtimeChannelBase,
	}, logger)
	broker.Start(rootCtx)
	logger.Info().Str("transport", broker.Transport()).Msg("realtime broker started")

	var storage service.FileStorage
	if cfg.CloudinaryCloudName != "" {
		store, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		storage = store
	} else {
		logger.Warn().Msg("cloudinary not configured, attachment uploads are disabled")
	}

	var assistant ai.Assistant
	if cfg.OpenAIAPIKey != "" {
		client, err := ai.NewOpenAIAssistant(ai.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
			Logger: logger,
		})
		if err != nil {
			log.Fatalf("failed to create assistant client: %v", err)
		}
		assistant = client
	} else {
		logger.Warn().Msg("openai not configured, assistant routes will respond with 502")
	}

	validate := utils.NewValidator()

	credentialRepo := repository.NewCredentialRepository(db)
	userRepo := repository.NewUserRepository(db)
	communityRepo := repository.NewCommunityRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	uploadRepo := repository.NewUploadRepository(db)

	identityService := service.NewIdentityService(service.IdentityDependencies{
		Credentials: credentialRepo,
		Users:       userRepo,
		Tokens:      security.NewTokenService(cfg.JWTSecret, cfg.TokenTTL),
		Redis:       redisClient,
		ChannelBase: cfg.RealtimeChannelBase,
		Broker:      broker,
		Validator:   validate,
	}, logger)
	communityService := service.NewCommunityService(communityRepo, userRepo, broker, validate, logger)
	messageService := service.NewMessageService(messageRepo, communityRepo, broker, validate, logger)
	assistantService := service.NewAssistantService(assistant, communityRepo, messageRepo, validate, cfg.AssistantTimeout, logger)
	uploadService := service.NewUploadService(storage, uploadRepo, cfg.UploadMaxSizeMB, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxSizeMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		Authenticator:    identityService,
		AuthHandler:      handler.NewAuthHandler(identityService, logger),
		ProfileHandler:   handler.NewProfileHandler(identityService, logger),
		CommunityHandler: handler.NewCommunityHandler(communityService, identityService, cfg.StreamKeepAlive, logger),
		ChannelHandler:   handler.NewChannelHandler(messageService, identityService, logger),
		AssistantHandler: handler.NewAssistantHandler(assistantService, logger),
		UploadHandler:    handler.NewUploadHandler(uploadService, logger),
		Features: map[string]bool{
			"redis":     redisClient != nil,
			"nats":      natsConn != nil,
			"uploads":   storage != nil,
			"assistant": assistant != nil,
		},
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, stopRoot, logger)
}

func waitForShutdown(app *fiber.App, stopRoot context.CancelFunc, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stopRoot()
	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}

func drainNATS(conn *nats.Conn, logger zerolog.Logger) {
	if err := conn.Drain(); err != nil {
		logger.Warn().Err(err).Msg("failed to drain nats connection")
	}
}
