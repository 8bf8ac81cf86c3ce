package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinic-core/internal/domain"
)

// AccessLogSink persists batches of access-log entries. Entries may belong
// to different tenants; each carries its TenantSlug. Tenants are written
// independently: one tenant's failure never discards another tenant's
// entries, and the returned error joins one *TenantWriteError per failed
// tenant. Writing an entry whose ID was already stored is a no-op.
type AccessLogSink interface {
	WriteAccessLogs(ctx context.Context, entries []domain.AccessLogEntry) error
}

// TenantWriteError reports the entries of one tenant that were not written.
type TenantWriteError struct {
	Tenant  string
	Entries int
	Err     error
}

func (e *TenantWriteError) Error() string {
	return fmt.Sprintf("access log for tenant %q (%d entries): %v", e.Tenant, e.Entries, e.Err)
}

func (e *TenantWriteError) Unwrap() error { return e.Err }

// FailedTenants returns the per-tenant failures carried by err. An error
// that carries none is reported as failing every tenant, which callers
// learn from the nil result and a non-nil err.
func FailedTenants(err error) []*TenantWriteError {
	if err == nil {
		return nil
	}
	var out []*TenantWriteError
	var walk func(error)
	walk = func(err error) {
		if tw, ok := err.(*TenantWriteError); ok {
			out = append(out, tw)
			return
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, e := range u.Unwrap() {
				walk(e)
			}
		case interface{ Unwrap() error }:
			if next := u.Unwrap(); next != nil {
				walk(next)
			}
		}
	}
	walk(err)
	return out
}

// GroupByTenant splits entries by TenantSlug, keeping first-seen tenant
// order and entry order within a tenant.
func GroupByTenant(entries []domain.AccessLogEntry) (tenants []string, groups map[string][]int) {
	groups = map[string][]int{}
	for i := range entries {
		slug := entries[i].TenantSlug
		if _, ok := groups[slug]; !ok {
			tenants = append(tenants, slug)
		}
		groups[slug] = append(groups[slug], i)
	}
	return tenants, groups
}

var errNoTenant = errors.New("entry has no tenant")

// AccessLogFilter narrows ListAccessLogs. Zero values mean "no bound".
type AccessLogFilter struct {
	From    time.Time
	To      time.Time
	UserID  string
	RouteID string
	Limit   int
}

// DefaultAccessLogLimit caps ListAccessLogs when the filter sets no limit.
const DefaultAccessLogLimit = 10000

// AccessLogReader reads the access log of the partition's tenant, newest first.
type AccessLogReader interface {
	ListAccessLogs(ctx context.Context, p *Partition, filter AccessLogFilter) ([]domain.AccessLogEntry, error)
}

func (f AccessLogFilter) limit() int {
	if f.Limit <= 0 || f.Limit > DefaultAccessLogLimit {
		return DefaultAccessLogLimit
	}
	return f.Limit
}

func (f AccessLogFilter) match(e *domain.AccessLogEntry) bool {
	if !f.From.IsZero() && e.At.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.At.Before(f.To) {
		return false
	}
	if f.UserID != "" && (e.UserID == nil || *e.UserID != f.UserID) {
		return false
	}
	if f.RouteID != "" && e.RouteID != f.RouteID {
		return false
	}
	return true
}
