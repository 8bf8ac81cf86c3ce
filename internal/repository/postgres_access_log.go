package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"clinic-core/internal/domain"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresAccessLogStore writes access-log batches through the shared pool.
// Writes happen after the request's partition is released, so inserts are
// qualified with the entry's tenant schema instead of relying on
// search_path.
type PostgresAccessLogStore struct {
	db *sql.DB
}

func NewPostgresAccessLogStore(db *sql.DB) *PostgresAccessLogStore {
	return &PostgresAccessLogStore{db: db}
}

var (
	_ AccessLogSink   = (*PostgresAccessLogStore)(nil)
	_ AccessLogReader = (*PostgresAccessLogStore)(nil)
)

func accessLogTable(tenant string) string {
	return pq.QuoteIdentifier(tenant) + ".access_log"
}

// WriteAccessLogs commits each tenant's entries in its own transaction.
func (s *PostgresAccessLogStore) WriteAccessLogs(ctx context.Context, entries []domain.AccessLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tenants, groups := GroupByTenant(entries)
	var errs []error
	for _, tenant := range tenants {
		idx := groups[tenant]
		if err := s.writeTenant(ctx, tenant, entries, idx); err != nil {
			errs = append(errs, &TenantWriteError{Tenant: tenant, Entries: len(idx), Err: err})
		}
	}
	return errors.Join(errs...)
}

func (s *PostgresAccessLogStore) writeTenant(ctx context.Context, tenant string, entries []domain.AccessLogEntry, idx []int) error {
	if tenant == "" {
		return errNoTenant
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO ` + accessLogTable(tenant) + `
		 (id, user_id, resource_id, route_id, action, decision, ip, user_agent, detail, at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`
	for _, i := range idx {
		e := &entries[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, query,
			e.ID, nullString(e.UserID), nullInt64(e.ResourceID), e.RouteID, string(e.Action), e.Decision,
			e.IP, domain.TruncateUserAgent(e.UserAgent), e.Detail, e.At)
		if err != nil {
			return fmt.Errorf("failed to insert access log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit access logs: %w", err)
	}
	return nil
}

// ListAccessLogs reads through the partition so only the active tenant's
// log is visible.
func (s *PostgresAccessLogStore) ListAccessLogs(ctx context.Context, p *Partition, filter AccessLogFilter) ([]domain.AccessLogEntry, error) {
	q, err := querierOf(p)
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !filter.From.IsZero() {
		add("at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("at < $%d", filter.To)
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.RouteID != "" {
		add("route_id = $%d", filter.RouteID)
	}

	query := `SELECT id, user_id, resource_id, route_id, action, decision, ip, user_agent, detail, at
		FROM access_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.limit())
	query += fmt.Sprintf(" ORDER BY at DESC LIMIT $%d", len(args))

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list access logs: %w", err)
	}
	defer rows.Close()

	var out []domain.AccessLogEntry
	for rows.Next() {
		var (
			e          domain.AccessLogEntry
			userID     sql.NullString
			resourceID sql.NullInt64
			action     string
		)
		if err := rows.Scan(&e.ID, &userID, &resourceID, &e.RouteID, &action, &e.Decision,
			&e.IP, &e.UserAgent, &e.Detail, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan access log: %w", err)
		}
		e.TenantSlug = p.Tenant
		e.Action = domain.Action(action)
		if userID.Valid {
			e.UserID = &userID.String
		}
		if resourceID.Valid {
			e.ResourceID = &resourceID.Int64
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}
