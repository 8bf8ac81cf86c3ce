package service

import (
	"context"

	"clinic-core/internal/domain"
	"clinic-core/internal/repository"
)

// RequestTenantContext is the tenant binding of one request. It lives only
// in that request's context.Context.
type RequestTenantContext struct {
	Tenant        *domain.Tenant
	Strategy      Strategy
	RemainingPath string
	Partition     *repository.Partition

	prefix string
}

// NewRequestTenantContext binds a resolution and its activated partition.
func NewRequestTenantContext(res *Resolution, p *repository.Partition) *RequestTenantContext {
	return &RequestTenantContext{
		Tenant:        res.Tenant,
		Strategy:      res.Strategy,
		RemainingPath: res.RemainingPath,
		Partition:     p,
		prefix:        res.PathPrefix,
	}
}

// Slug returns the tenant slug, or "" for a nil context.
func (c *RequestTenantContext) Slug() string {
	if c == nil || c.Tenant == nil {
		return ""
	}
	return c.Tenant.Slug
}

// Prefix is the path prefix handlers must put in front of links they
// build: "/<slug>" for path-resolved requests, "" otherwise.
func (c *RequestTenantContext) Prefix() string {
	if c == nil {
		return ""
	}
	return c.prefix
}

type tenantCtxKey struct{}

func WithTenantContext(ctx context.Context, tc *RequestTenantContext) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tc)
}

func TenantFromContext(ctx context.Context) (*RequestTenantContext, bool) {
	tc, ok := ctx.Value(tenantCtxKey{}).(*RequestTenantContext)
	return tc, ok && tc != nil
}

// RequestMeta carries caller details recorded in the access log.
type RequestMeta struct {
	RequestID string
	IP        string
	UserAgent string
}

type metaCtxKey struct{}

func WithRequestMeta(ctx context.Context, m RequestMeta) context.Context {
	return context.WithValue(ctx, metaCtxKey{}, m)
}

func RequestMetaFromContext(ctx context.Context) RequestMeta {
	m, _ := ctx.Value(metaCtxKey{}).(RequestMeta)
	return m
}
