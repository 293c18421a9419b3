package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"journal-sync/internal/config"
	"journal-sync/internal/db"
	"journal-sync/internal/logger"
	"journal-sync/internal/queue"
	"journal-sync/internal/worker"
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

	log.Info().Str("version", cfg.App.Version).Msg("Starting notify worker")

	// Initialize database
	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	repo := db.NewRepository(database)

	// Initialize Redis client
	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	consumer := queue.NewConsumer(redisClient, cfg)
	notifyWorker := worker.NewNotifyWorker(repo, consumer, cfg.Workers.Notify.Count)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- notifyWorker.Start(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutting down notify worker...")
		cancel()
		if err := <-done; err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Notify worker stopped")
		}
	case err := <-done:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Notify worker stopped")
		}
	}

	// Consumption has ended; drain queued notifications before exiting.
	notifyWorker.Stop()

	log.Info().Str("dlq", consumer.DeadLetterQueue()).Msg("Notify worker exited")
}
