package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	rediscommon "clinic-core/common/redis"
	"clinic-core/internal/domain"
	"clinic-core/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// maxAccessLogDeliveries bounds how often a message is offered to the sink
// before it is moved to the dead-letter stream.
const maxAccessLogDeliveries = 5

// AccessLogDrainer moves access-log entries from a Redis stream into the
// durable sink using a consumer group. Each tenant's messages are written
// and acknowledged on their own, so a failing tenant never holds back the
// others. A message the sink keeps rejecting is copied to the dead-letter
// stream and acknowledged. A crash replays unacknowledged messages; the
// sink ignores IDs it already stored.
type AccessLogDrainer struct {
	client     *redis.Client
	stream     string
	deadStream string
	group      string
	consumer   string
	sink       repository.AccessLogSink
	logger     *zap.Logger

	batch         int64
	block         time.Duration
	maxDeliveries int
	attempts      map[string]int // message id -> failed writes
}

func NewAccessLogDrainer(client *redis.Client, stream, group, consumer string, sink repository.AccessLogSink, logger *zap.Logger) *AccessLogDrainer {
	return &AccessLogDrainer{
		client:        client,
		stream:        stream,
		deadStream:    stream + ":dead",
		group:         group,
		consumer:      consumer,
		sink:          sink,
		logger:        logger,
		batch:         accessLogBatchSize,
		block:         2 * time.Second,
		maxDeliveries: maxAccessLogDeliveries,
		attempts:      map[string]int{},
	}
}

// CreateGroup makes sure the stream and consumer group exist.
func (d *AccessLogDrainer) CreateGroup(ctx context.Context) error {
	return rediscommon.CreateConsumerGroup(ctx, d.client, d.stream, d.group)
}

// Run drains until ctx is cancelled.
func (d *AccessLogDrainer) Run(ctx context.Context) error {
	if err := d.CreateGroup(ctx); err != nil {
		return err
	}
	d.logger.Info("access log drainer started",
		zap.String("stream", d.stream), zap.String("group", d.group))

	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := d.DrainOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Warn("access log drain failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if n > 0 {
			d.logger.Debug("access log entries drained", zap.Int("entries", n))
		}
	}
}

// tenantBatch is one tenant's share of a drained read.
type tenantBatch struct {
	entries []domain.AccessLogEntry
	msgs    []rediscommon.StreamMessage
}

// DrainOnce retries this consumer's unacknowledged messages together with
// any new ones, writes each tenant's entries separately and acknowledges
// what the sink accepted. Undecodable messages are acknowledged and
// skipped. The error joins ErrLogSinkFailure with the tenants still
// pending; the count covers entries written.
func (d *AccessLogDrainer) DrainOnce(ctx context.Context) (int, error) {
	msgs, err := rediscommon.ReadPendingFromStream(ctx, d.client, d.stream, d.group, d.consumer, d.batch)
	if err != nil {
		return 0, err
	}
	block := d.block
	if len(msgs) > 0 {
		block = -1
	}
	fresh, err := rediscommon.ReadFromStream(ctx, d.client, d.stream, d.group, d.consumer, d.batch, block)
	if err != nil {
		return 0, err
	}
	msgs = append(msgs, fresh...)
	if len(msgs) == 0 {
		return 0, nil
	}

	var (
		tenants   []string
		batches   = map[string]*tenantBatch{}
		malformed []string
	)
	for _, m := range msgs {
		raw, _ := m.Values["data"].(string)
		var e domain.AccessLogEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil || e.TenantSlug == "" {
			d.logger.Warn("skipping malformed access log message", zap.String("id", m.ID))
			malformed = append(malformed, m.ID)
			continue
		}
		b, ok := batches[e.TenantSlug]
		if !ok {
			b = &tenantBatch{}
			batches[e.TenantSlug] = b
			tenants = append(tenants, e.TenantSlug)
		}
		b.entries = append(b.entries, e)
		b.msgs = append(b.msgs, m)
	}
	if err := rediscommon.Ack(ctx, d.client, d.stream, d.group, malformed...); err != nil {
		return 0, err
	}

	written := 0
	var failures []error
	for _, tenant := range tenants {
		b := batches[tenant]
		werr := d.sink.WriteAccessLogs(ctx, b.entries)
		if werr == nil {
			if err := d.ack(ctx, b.msgs); err != nil {
				return written, err
			}
			written += len(b.entries)
			continue
		}
		retrying, err := d.recordFailure(ctx, tenant, b.msgs, werr)
		if err != nil {
			return written, err
		}
		if retrying > 0 {
			failures = append(failures, &repository.TenantWriteError{Tenant: tenant, Entries: retrying, Err: werr})
		}
	}
	if len(failures) > 0 {
		return written, errors.Join(append([]error{ErrLogSinkFailure}, failures...)...)
	}
	return written, nil
}

func (d *AccessLogDrainer) ack(ctx context.Context, msgs []rediscommon.StreamMessage) error {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
		delete(d.attempts, m.ID)
	}
	return rediscommon.Ack(ctx, d.client, d.stream, d.group, ids...)
}

// recordFailure counts a failed write for every message and dead-letters
// those that reached maxDeliveries. It returns how many stay pending.
func (d *AccessLogDrainer) recordFailure(ctx context.Context, tenant string, msgs []rediscommon.StreamMessage, cause error) (int, error) {
	var dead []rediscommon.StreamMessage
	retrying := 0
	for _, m := range msgs {
		d.attempts[m.ID]++
		if d.attempts[m.ID] >= d.maxDeliveries {
			dead = append(dead, m)
			continue
		}
		retrying++
	}
	for _, m := range dead {
		err := d.client.XAdd(ctx, &redis.XAddArgs{
			Stream: d.deadStream,
			Values: map[string]interface{}{
				"data":      m.Values["data"],
				"source_id": m.ID,
				"tenant":    tenant,
				"error":     cause.Error(),
				"attempts":  d.attempts[m.ID],
			},
		}).Err()
		if err != nil {
			return retrying, err
		}
		d.logger.Warn("access log message moved to dead-letter stream",
			zap.String("id", m.ID),
			zap.String("tenant", tenant),
			zap.String("dead_stream", d.deadStream),
			zap.Int("attempts", d.attempts[m.ID]),
			zap.Error(cause))
	}
	if err := d.ack(ctx, dead); err != nil {
		return retrying, err
	}
	return retrying, nil
}
