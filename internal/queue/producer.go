package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"journal-sync/internal/config"
	"journal-sync/internal/model"

	"github.com/go-redis/redis/v8"
)

// Producer publishes journal notifications to the Redis notification list.
type Producer struct {
	client *redis.Client
	queue  string
}

func NewProducer(redisClient *RedisClient, cfg *config.Config) *Producer {
	return &Producer{
		client: redisClient.Client(),
		queue:  cfg.Redis.NotificationQueue,
	}
}

func (p *Producer) Notify(ctx context.Context, n model.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	return p.client.LPush(ctx, p.queue, data).Err()
}
