package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Partition is one request's handle on a tenant's schema. It is created by
// a PartitionActivator, carried in the request context, and released
// exactly once when the request ends. It is never shared between requests.
type Partition struct {
	Tenant string

	conn    *sql.Conn
	release func()
	once    sync.Once
}

// Querier returns the tenant-scoped connection, or nil for partitions that
// are not backed by Postgres.
func (p *Partition) Querier() Querier {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn
}

// Release deactivates the partition. Safe to call more than once.
func (p *Partition) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		if p.release != nil {
			p.release()
		}
	})
}

// PartitionActivator activates a tenant's partition for one request.
type PartitionActivator interface {
	Activate(ctx context.Context, tenantSlug string) (*Partition, error)
}

// PostgresPartitionActivator pins one pooled connection per request and
// points its search_path at the tenant schema. Release resets the
// search_path before the connection goes back to the pool; if the reset
// fails the connection is discarded instead.
type PostgresPartitionActivator struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresPartitionActivator(db *sql.DB, logger *zap.Logger) *PostgresPartitionActivator {
	return &PostgresPartitionActivator{db: db, logger: logger}
}

var _ PartitionActivator = (*PostgresPartitionActivator)(nil)

// SearchPathStatement returns the statement that activates slug.
func SearchPathStatement(slug string) string {
	return "SET search_path TO " + pq.QuoteIdentifier(slug) + ", public"
}

func (a *PostgresPartitionActivator) Activate(ctx context.Context, tenantSlug string) (*Partition, error) {
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection for tenant %q: %w", tenantSlug, err)
	}
	if _, err := conn.ExecContext(ctx, SearchPathStatement(tenantSlug)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to activate tenant %q: %w", tenantSlug, err)
	}

	p := &Partition{Tenant: tenantSlug, conn: conn}
	p.release = func() {
		// The request context may already be cancelled here.
		resetCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.ExecContext(resetCtx, "RESET search_path"); err != nil {
			a.logger.Warn("failed to reset search_path, discarding connection",
				zap.String("tenant", tenantSlug), zap.Error(err))
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		if err := conn.Close(); err != nil {
			a.logger.Debug("closing tenant connection", zap.String("tenant", tenantSlug), zap.Error(err))
		}
	}
	return p, nil
}

// NoopPartitionActivator hands out partitions that only carry the tenant
// slug. Used with the in-memory stores.
type NoopPartitionActivator struct{}

var _ PartitionActivator = NoopPartitionActivator{}

func (NoopPartitionActivator) Activate(_ context.Context, tenantSlug string) (*Partition, error) {
	return &Partition{Tenant: tenantSlug}, nil
}

// NewStaticPartition builds a partition over an existing querier, for
// tools that manage their own connection.
func NewStaticPartition(tenantSlug string, conn *sql.Conn) *Partition {
	return &Partition{Tenant: tenantSlug, conn: conn}
}

// NewReleasablePartition builds a storage-less partition that runs release
// once when the request ends. Used to track partition lifetimes.
func NewReleasablePartition(tenantSlug string, release func()) *Partition {
	return &Partition{Tenant: tenantSlug, release: release}
}
