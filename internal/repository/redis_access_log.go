package repository

import (
	"context"
	"fmt"

	rediscommon "clinic-core/common/redis"
	"clinic-core/internal/domain"

	"github.com/go-redis/redis/v8"
)

// RedisStreamAccessLogSink appends entries to a Redis stream as JSON. A
// drainer moves them into Postgres later, which keeps access-log writes
// off the database when it is busy or briefly unavailable.
type RedisStreamAccessLogSink struct {
	client *redis.Client
	stream string
}

func NewRedisStreamAccessLogSink(client *redis.Client, stream string) *RedisStreamAccessLogSink {
	return &RedisStreamAccessLogSink{client: client, stream: stream}
}

var _ AccessLogSink = (*RedisStreamAccessLogSink)(nil)

func (s *RedisStreamAccessLogSink) WriteAccessLogs(ctx context.Context, entries []domain.AccessLogEntry) error {
	for i := range entries {
		if _, err := rediscommon.PublishJSONToStream(ctx, s.client, s.stream, &entries[i]); err != nil {
			return fmt.Errorf("failed to publish access log to %s: %w", s.stream, err)
		}
	}
	return nil
}
