// internal/common/database/redis.go
package database

import (
	"context"
	"fmt"

	"medical-triage/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient backs the retrieval cache.
type RedisClient struct {
	Client *redis.Client
}

// NewRedis builds the client lazily; nothing is dialled until the first
// command. Zero timeouts and pool size fall back to the go-redis defaults.
func NewRedis(cfg config.RedisConfig) *RedisClient {
	io := config.GetDuration(cfg.IOTimeout)
	return &RedisClient{Client: redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.PoolSize / 5,
		DialTimeout:  config.GetDuration(cfg.DialTimeout),
		ReadTimeout:  io,
		WriteTimeout: io,
	})}
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
