package queue

import (
	"context"
	"errors"
	"time"

	"journal-sync/internal/config"
	"journal-sync/internal/logger"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

type Consumer struct {
	client      *redis.Client
	queue       string
	dlqSuffix   string
	pollTimeout time.Duration
	log         zerolog.Logger
}

const dlqTimeout = 5 * time.Second

type MessageHandler = func(ctx context.Context, data []byte) error

func NewConsumer(redisClient *RedisClient, cfg *config.Config) *Consumer {
	return &Consumer{
		client:      redisClient.Client(),
		queue:       cfg.Redis.NotificationQueue,
		dlqSuffix:   cfg.Redis.DLQSuffix,
		pollTimeout: 5 * time.Second,
		log:         logger.For("queue_consumer"),
	}
}

// DeadLetterQueue is where messages whose handler failed are parked.
func (c *Consumer) DeadLetterQueue() string {
	return c.queue + c.dlqSuffix
}

// Consume pops notifications until ctx is cancelled. Messages whose handler
// fails are moved to the dead letter queue.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := c.client.BRPop(ctx, c.pollTimeout, c.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // Timeout, continue polling
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error().Err(err).Str("queue", c.queue).Msg("Failed to consume message")
			continue
		}

		if len(result) < 2 {
			continue
		}

		message := []byte(result[1])
		if err := handler(ctx, message); err != nil {
			c.log.Error().Err(err).Str("queue", c.queue).Msg("Failed to process message")
			if dlqErr := c.DeadLetter(ctx, message); dlqErr != nil {
				c.log.Error().Err(dlqErr).Str("dlq", c.DeadLetterQueue()).Msg("Failed to move message to DLQ")
			}
		}
	}
}

// DeadLetter pushes a message to the dead letter queue. It still runs when ctx
// has been cancelled so that a message popped during shutdown is not lost.
func (c *Consumer) DeadLetter(ctx context.Context, message []byte) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dlqTimeout)
	defer cancel()
	return c.client.LPush(ctx, c.DeadLetterQueue(), message).Err()
}
