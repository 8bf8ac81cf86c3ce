package redis

import (
	"context"
	"time"

	"clinic-core/common/config"

	"github.com/go-redis/redis/v8"
)

// Client is the go-redis client used across clinic-core.
type Client = redis.Client

// NewRedisClient builds a client; it does not dial until first use.
// Timeouts are short: every caller treats Redis as optional and falls
// back to the database when it is slow.
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// Ping checks connectivity.
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// Close closes the client.
func Close(client *redis.Client) error {
	return client.Close()
}
