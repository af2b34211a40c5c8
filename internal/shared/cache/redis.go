package cache

import (
	"context"
	"time"

	"github.com/boglepay/gateway/internal/shared/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates a Redis client for the idempotency cache. The
// client is returned even when the ping fails so callers can decide
// whether a cold cache is fatal.
func NewRedisClient(cfg *config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client, client.Ping(ctx).Err()
}

// Close closes the Redis client.
func Close(client redis.UniversalClient) error {
	return client.Close()
}
