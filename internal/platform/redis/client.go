package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"rentguard/internal/platform/config"
)

// Client wraps the go-redis client with health checking capabilities.
type Client struct {
	*redis.Client
}

// New creates a new Redis client from the provided configuration.
// Returns nil if the URL is empty (Redis not configured).
func New(ctx context.Context, cfg config.Redis) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout.Duration > 0 {
		opts.DialTimeout = cfg.DialTimeout.Duration
	}
	if cfg.ReadTimeout.Duration > 0 {
		opts.ReadTimeout = cfg.ReadTimeout.Duration
	}
	if cfg.WriteTimeout.Duration > 0 {
		opts.WriteTimeout = cfg.WriteTimeout.Duration
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}
