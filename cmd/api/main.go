package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/spark-chat-api/internal/config"
	"github.com/noah-isme/spark-chat-api/internal/database"
	"github.com/noah-isme/spark-chat-api/internal/handler"
	"github.com/noah-isme/spark-chat-api/internal/middleware"
	"github.com/noah-isme/spark-chat-api/internal/repository"
	"github.com/noah-isme/spark-chat-api/internal/router"
	"github.com/noah-isme/spark-chat-api/internal/service"
	cloud "github.com/noah-isme/spark-chat-api/pkg/cloudinary"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level).With().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to nats")
	}

	images := cloud.Placeholder(logger)
	if cfg.CloudinaryCloudName != "" {
		resolver, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryFolder,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cloudinary client")
		}
		images = resolver
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	streamRepo := repository.NewStreamRepository(redisClient, cfg.StreamMaxLen)
	messageRepo := repository.NewMessageRepository(db)
	userRepo := repository.NewUserRepository(db)
	presenceRepo := repository.NewPresenceRepository(db)

	queue := service.NewWriteBehind(cfg.WriteBehindWorkers, cfg.WriteBehindQueue, logger)

	var presenceOpts []service.PresenceOption
	if cfg.PresenceMirror {
		presenceOpts = append(presenceOpts, service.WithPresenceMirror(presenceRepo, queue))
	}

	tokens := service.NewTokenService(cfg.JWTSecret, cfg.JWTTTL, redisClient, logger)
	metadata := service.NewChatMetadataStore(redisClient, logger)
	presence := service.NewPresenceStore(redisClient, cfg.HeartbeatTTL, logger, presenceOpts...)
	profiles := service.NewProfileCache(userRepo, redisClient, images, service.ProfileCacheConfig{
		ProfileTTL:      cfg.ProfileCacheTTL,
		FeedTTL:         cfg.SwipeFeedTTL,
		BatchSize:       cfg.ProfileBatchSize,
		FetchMultiplier: cfg.SwipeFetchMultiplier,
		FetchMin:        cfg.SwipeFetchMin,
	}, logger)
	friends := service.NewFriendService(profiles, presence, metadata, redisClient, cfg.FriendsCacheTTL, logger)
	history := service.NewChatHistoryService(streamRepo, messageRepo, metadata, friends, validate, service.ChatHistoryConfig{
		PageDefault:       cfg.PageDefault,
		PageMax:           cfg.PageMax,
		StreamReadTimeout: cfg.StreamReadTimeout,
	}, logger)
	swipes := service.NewSwipeService(userRepo, profiles, validate, logger)
	profileService := service.NewProfileService(userRepo, profiles, validate, logger)

	gateway := service.NewGateway(service.GatewayDependencies{
		Tokens:    tokens,
		Streams:   streamRepo,
		Metadata:  metadata,
		Presence:  presence,
		History:   history,
		Friends:   friends,
		Queue:     queue,
		Bridge:    service.NewRealtimeBridge(redisClient, natsConn, cfg.ChannelBase, logger),
		Redis:     redisClient,
		Validator: validate,
	}, service.GatewayConfig{
		AuthTimeout:   cfg.RealtimeAuthTimeout,
		PreviewLength: cfg.PreviewLength,
	}, logger)

	rootCtx, cancel := context.WithCancel(context.Background())
	queue.Start(rootCtx)
	if err := gateway.Start(rootCtx); err != nil {
		logger.Fatal().Err(err).Msg("failed to subscribe realtime bridge")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ChatHandler:     handler.NewChatHandler(history, logger),
		SwipeHandler:    handler.NewSwipeHandler(swipes, cfg.SwipeRateLimit, logger),
		FriendHandler:   handler.NewFriendHandler(friends, presence, logger),
		ProfileHandler:  handler.NewProfileHandler(profileService, logger),
		RealtimeHandler: handler.NewRealtimeHandler(gateway, cfg.JWTCookieName, logger),
		ActiveSessions:  gateway.ActiveSessions,
		JWTMiddleware:   middleware.JWTProtected(tokens, cfg.JWTCookieName),
	})

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress()).Msg("starting http server")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)

	cancel()
	queue.Stop()
	closeClients(logger, natsConn, redisClient, db)
	logger.Info().Msg("server stopped")
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func closeClients(logger zerolog.Logger, natsConn *nats.Conn, redisClient *redis.Client, db *gorm.DB) {
	if natsConn != nil {
		natsConn.Close()
	}
	if err := redisClient.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close redis client")
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close database")
		}
	}
}
