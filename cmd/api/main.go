package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"journal-sync/internal/api"
	"journal-sync/internal/config"
	"journal-sync/internal/db"
	"journal-sync/internal/gateway"
	"journal-sync/internal/journal"
	"journal-sync/internal/logger"
	"journal-sync/internal/queue"
	"journal-sync/internal/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting journal API server")

	opts := journal.SessionOptions{
		StatsDebounce:  cfg.Journal.StatsDebounce,
		RefreshTimeout: cfg.Gateway.Timeout,
	}

	// Audit trail is optional
	var repo db.Repository
	if cfg.Database.Host != "" {
		database, err := db.NewConnection(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer database.Close()
		repo = db.NewRepository(database)
	}

	// Notifications are published to Redis when configured
	if cfg.Redis.Host != "" {
		redisClient, err := queue.NewRedisClient(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		opts.Notifier = queue.NewProducer(redisClient, cfg)
	}

	var snapshots api.SnapshotReader
	if cfg.Storage.S3.Enabled {
		s3Storage, err := storage.NewS3Storage(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 storage")
		}
		archiver := storage.NewSnapshotArchiver(s3Storage, cfg.Storage.S3.Prefix)
		opts.Archiver = archiver
		snapshots = archiver
	}

	gw := gateway.NewClient(cfg)
	manager := journal.NewManager(gw, cfg.Journal.SessionTTL, opts)
	handler := api.NewHandler(manager, repo, snapshots, cfg)

	// Setup Gin router
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(api.LoggingMiddleware())
	router.Use(api.RecoveryMiddleware())

	api.SetupRoutes(router, handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.CORS(router, cfg.Server.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	manager.CloseAll()

	log.Info().Msg("Server exited")
}
