package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clinic-core/internal/domain"
	"clinic-core/internal/metrics"
	"clinic-core/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultAccessLogBuffer = 1024
	accessLogBatchSize     = 100
	accessLogFlushInterval = time.Second
	accessLogWriteTimeout  = 5 * time.Second
)

// AccessLogger buffers access-log entries in memory and writes them to a
// sink in batches from a single goroutine. Record never blocks: when the
// buffer is full the entry is dropped and counted.
type AccessLogger struct {
	sink    repository.AccessLogSink
	logger  *zap.Logger
	metrics *metrics.Metrics

	flushInterval time.Duration
	batchSize     int

	mu     sync.RWMutex
	closed bool
	ch     chan domain.AccessLogEntry
	done   chan struct{}
	start  sync.Once
}

func NewAccessLogger(sink repository.AccessLogSink, bufferSize int, logger *zap.Logger, m *metrics.Metrics) *AccessLogger {
	if bufferSize <= 0 {
		bufferSize = defaultAccessLogBuffer
	}
	return &AccessLogger{
		sink:          sink,
		logger:        logger,
		metrics:       m,
		flushInterval: accessLogFlushInterval,
		batchSize:     accessLogBatchSize,
		ch:            make(chan domain.AccessLogEntry, bufferSize),
		done:          make(chan struct{}),
	}
}

var _ AccessRecorder = (*AccessLogger)(nil)

// Start launches the writer goroutine. Calling it again is a no-op.
func (l *AccessLogger) Start() {
	l.start.Do(func() { go l.run() })
}

// Record queues entry for writing.
func (l *AccessLogger) Record(entry domain.AccessLogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.metrics.AccessLogDropped(1)
		return
	}
	select {
	case l.ch <- entry:
	default:
		l.metrics.AccessLogDropped(1)
		l.logger.Warn("access log buffer full, dropping entry",
			zap.String("tenant", entry.TenantSlug),
			zap.String("route_id", entry.RouteID))
	}
}

// Close stops accepting entries and waits until the buffer is flushed or
// ctx is done.
func (l *AccessLogger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
	l.mu.Unlock()

	l.Start()
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("access log flush interrupted: %w", ctx.Err())
	}
}

func (l *AccessLogger) run() {
	defer close(l.done)

	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	batch := make([]domain.AccessLogEntry, 0, l.batchSize)
	for {
		select {
		case e, ok := <-l.ch:
			if !ok {
				l.flush(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= l.batchSize {
				l.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				l.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// flush writes one batch. Sink failures are logged and the batch dropped.
func (l *AccessLogger) flush(batch []domain.AccessLogEntry) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), accessLogWriteTimeout)
	defer cancel()

	out := make([]domain.AccessLogEntry, len(batch))
	copy(out, batch)
	err := l.sink.WriteAccessLogs(ctx, out)
	if err == nil {
		l.metrics.AccessLogWritten(len(out))
		return
	}
	dropped := len(out)
	if failed := repository.FailedTenants(err); len(failed) > 0 {
		dropped = 0
		for _, f := range failed {
			dropped += f.Entries
		}
	}
	l.metrics.AccessLogDropped(dropped)
	l.metrics.AccessLogWritten(len(out) - dropped)
	l.logger.Warn("failed to write access log batch",
		zap.Int("entries", len(out)),
		zap.Int("dropped", dropped),
		zap.Error(fmt.Errorf("%w: %v", ErrLogSinkFailure, err)))
}
