package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/modelgate/modelgate/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient returns a configured Redis client, verifying connectivity
// before handing it out.
func NewRedisClient(cfg config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
