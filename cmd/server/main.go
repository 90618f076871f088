package main

// @title           DM Chat Service API
// @version         1.0
// @description     One-to-one real-time chat over authenticated websockets
// @host            localhost:3000
// @BasePath        /
// @schemes         http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"

	"dm-chat-service/internal/adapters/kafka"
	"dm-chat-service/internal/api/routes"
	"dm-chat-service/internal/auth"
	"dm-chat-service/internal/config"
	"dm-chat-service/internal/database"
	"dm-chat-service/internal/repositories"
	"dm-chat-service/internal/services"
	"dm-chat-service/internal/websocket"
	"dm-chat-service/pkg/logger"

	gfshutdown "github.com/gelmium/graceful-shutdown"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	appLogger := logger.New(logger.Options{
		Level:       cfg.Log.Level,
		Development: !cfg.IsProduction(),
		FilePath:    cfg.Log.File,
	})
	defer appLogger.Sync()

	appLogger.Info("Starting chat server", "env", cfg.App.Environment)

	// Relational store
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		appLogger.Error("Failed to connect to database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}

	// Key set refresh runs until shutdown
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	verifier, err := auth.NewVerifier(bgCtx, auth.Config{
		JWKSURL:   cfg.Auth.JWKSURL,
		Issuer:    cfg.Auth.Issuer,
		Audience:  cfg.Auth.Audience,
		Algorithm: cfg.Auth.Algorithm,
	})
	if err != nil {
		appLogger.Error("Failed to initialize token verifier", "error", err)
		os.Exit(1)
	}

	hubOpts := websocket.Options{
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
		SendBuffer:       cfg.WebSocket.SendBuffer,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
	}
	routeDeps := routes.Dependencies{
		Verifier:       verifier,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         appLogger,
	}

	// Redis is optional: presence, rate limiting and the cross-instance relay
	var (
		redisClient *database.RedisClient
		presence    services.PresenceReader
	)
	if cfg.Redis.URL != "" {
		redisClient, err = database.NewRedisConnection(cfg.Redis.URL, appLogger)
		if err != nil {
			appLogger.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		redisService := services.NewRedisService(redisClient, appLogger)
		hubOpts.Presence = redisService
		hubOpts.Relay = redisService
		routeDeps.Limiter = redisService
		presence = redisService
	} else {
		appLogger.Warn("REDIS_URL not set, presence and relay disabled")
	}

	// Kafka is optional: message.created events
	var publisher *services.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.InitKafkaProducer(cfg.Kafka.Brokers)
		if err != nil {
			appLogger.Error("Failed to create Kafka producer", "brokers", cfg.Kafka.Brokers, "error", err)
			os.Exit(1)
		}
		publisher = services.NewEventPublisher(producer, cfg.Kafka.Topic)
		hubOpts.Events = publisher
	}

	// Services
	directory := services.NewDirectoryService(
		repositories.NewUserRepository(db),
		presence,
		cfg.Directory.QueueSize,
		appLogger,
	)
	directory.Start()
	hubOpts.Directory = directory

	chatService := services.NewChatService(repositories.NewMessageRepository(db))

	// Initialize WebSocket hub
	hub := websocket.NewHub(chatService, verifier, hubOpts, appLogger)
	go hub.Run()

	routeDeps.Hub = hub
	routeDeps.Directory = directory
	routeDeps.Chat = chatService
	router := routes.NewRouter(routeDeps)
	router.SetupRoutes()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLogger.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Operations run concurrently. Each one waits for the ones it depends on.
	httpDone := make(chan struct{})
	hubDone := make(chan struct{})
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.App.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				defer close(httpDone)
				appLogger.Info("Server shutting down...")
				return server.Shutdown(ctx)
			},
			"websocket-hub": func(ctx context.Context) error {
				defer close(hubDone)
				return hub.Stop(ctx)
			},
			"storage": func(ctx context.Context) error {
				if err := awaitAll(ctx, httpDone, hubDone); err != nil {
					return err
				}
				var errs []error
				errs = append(errs, directory.Stop(ctx))
				if publisher != nil {
					errs = append(errs, publisher.Close())
				}
				if redisClient != nil {
					errs = append(errs, redisClient.Close())
				}
				errs = append(errs, database.Close(db))
				cancelBg()
				return errors.Join(errs...)
			},
		},
	)

	exitCode := <-wait
	appLogger.Info("Server stopped", "exitCode", exitCode)
	_ = appLogger.Sync()
	os.Exit(exitCode)
}

func awaitAll(ctx context.Context, done ...chan struct{}) error {
	for _, ch := range done {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
