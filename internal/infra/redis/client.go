// Package redis provides the Redis-backed coordination primitives: the
// shared client, the evaluator's advisory locks, and the task cancel
// notifier.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/internal/config"
	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
)

// Client wraps redis.Client with additional functionality.
type Client struct {
	client *redis.Client
	logger *logger.Logger
}

// New creates a new Redis client.
func New(cfg *config.RedisConfig, log *logger.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("redis config is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("redis connected", "addr", cfg.Addr())
	return &Client{client: client, logger: log}, nil
}

// Client returns the underlying redis client.
func (c *Client) Client() *redis.Client {
	return c.client
}

// HealthCheck performs a health check on the Redis connection.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
