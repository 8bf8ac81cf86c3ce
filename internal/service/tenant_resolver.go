package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"clinic-core/internal/domain"
	"clinic-core/internal/metrics"
	"clinic-core/internal/repository"

	"go.uber.org/zap"
)

// Strategy names the resolution step that bound a request to its tenant.
type Strategy string

const (
	StrategyOverride Strategy = "override"
	StrategyPath     Strategy = "path"
	StrategyDomain   Strategy = "domain"
	StrategyDefault  Strategy = "default"
)

// TenantQueryParam is the explicit tenant override.
const TenantQueryParam = "tenant"

// reservedPrefixes are first path segments that never name a tenant.
var reservedPrefixes = map[string]struct{}{
	"admin":         {},
	"static":        {},
	"media":         {},
	"api":           {},
	"debug":         {},
	"accounts":      {},
	"setup":         {},
	"setup-tenants": {},
	"simple-setup":  {},
	"tenants":       {},
	"switch":        {},
	"__debug__":     {},
	"metrics":       {},
	"healthz":       {},
}

// IsReservedPrefix reports whether segment is reserved for platform routes.
func IsReservedPrefix(segment string) bool {
	_, ok := reservedPrefixes[strings.ToLower(segment)]
	return ok
}

// Resolution is the outcome of ResolveTenant.
type Resolution struct {
	Tenant   *domain.Tenant
	Strategy Strategy
	// RemainingPath is the request path with a path-based tenant prefix
	// removed; for other strategies it is the original path.
	RemainingPath string
	// PathPrefix is "/<slug>" when Strategy is StrategyPath.
	PathPrefix string
}

// TenantResolver binds requests to tenants.
type TenantResolver struct {
	dir         repository.TenantDirectory
	defaultSlug string
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

func NewTenantResolver(dir repository.TenantDirectory, defaultSlug string, logger *zap.Logger, m *metrics.Metrics) *TenantResolver {
	return &TenantResolver{dir: dir, defaultSlug: defaultSlug, logger: logger, metrics: m}
}

// ResolveTenant applies, in order: the tenant query override, the first path
// segment, the Host header and the configured default. The first step that
// finds a tenant wins. Lookup failures fall through to the next step. A
// found tenant that is not active ends the chain with ErrTenantInactive.
func (r *TenantResolver) ResolveTenant(ctx context.Context, req *http.Request) (*Resolution, error) {
	res, err := r.resolve(ctx, req)
	if err != nil {
		reason := "not_resolved"
		if errors.Is(err, ErrTenantInactive) {
			reason = "inactive"
		}
		r.metrics.TenantResolveFailed(reason)
		return nil, err
	}
	r.metrics.TenantResolved(string(res.Strategy))
	return res, nil
}

func (r *TenantResolver) resolve(ctx context.Context, req *http.Request) (*Resolution, error) {
	path := req.URL.Path
	if path == "" {
		path = "/"
	}

	if slug := strings.TrimSpace(req.URL.Query().Get(TenantQueryParam)); slug != "" {
		if t := r.lookup(ctx, StrategyOverride, slug, r.dir.GetTenantBySlug); t != nil {
			return r.found(t, &Resolution{Tenant: t, Strategy: StrategyOverride, RemainingPath: path})
		}
	}

	if segment, rest := splitFirstSegment(path); segment != "" && !IsReservedPrefix(segment) && IsValidTenantSlug(segment) {
		if t := r.lookup(ctx, StrategyPath, segment, r.dir.GetTenantBySlug); t != nil {
			return r.found(t, &Resolution{
				Tenant:        t,
				Strategy:      StrategyPath,
				RemainingPath: rest,
				PathPrefix:    "/" + segment,
			})
		}
	}

	if host := NormalizeHost(req.Host); host != "" {
		if t := r.lookup(ctx, StrategyDomain, host, r.dir.GetTenantByHostname); t != nil {
			return r.found(t, &Resolution{Tenant: t, Strategy: StrategyDomain, RemainingPath: path})
		}
	}

	if r.defaultSlug != "" {
		if t := r.lookup(ctx, StrategyDefault, r.defaultSlug, r.dir.GetTenantBySlug); t != nil {
			return r.found(t, &Resolution{Tenant: t, Strategy: StrategyDefault, RemainingPath: path})
		}
	}

	return nil, fmt.Errorf("host %q path %q: %w", req.Host, path, ErrTenantNotResolved)
}

func (r *TenantResolver) found(t *domain.Tenant, res *Resolution) (*Resolution, error) {
	if !t.IsActive() {
		r.logger.Info("tenant inactive",
			zap.String("tenant", t.Slug),
			zap.String("status", t.Status),
			zap.String("strategy", string(res.Strategy)))
		return nil, fmt.Errorf("tenant %q is %s: %w", t.Slug, t.Status, ErrTenantInactive)
	}
	return res, nil
}

// lookup returns nil on a miss. Store errors are logged and count as a miss.
func (r *TenantResolver) lookup(ctx context.Context, step Strategy, key string,
	fn func(context.Context, string) (*domain.Tenant, error)) *domain.Tenant {

	t, err := fn(ctx, key)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			r.logger.Warn("tenant directory lookup failed",
				zap.String("strategy", string(step)),
				zap.String("key", key),
				zap.Error(err))
		}
		return nil
	}
	return t
}

// splitFirstSegment splits "/acme/patients/" into "acme" and "/patients/".
func splitFirstSegment(path string) (segment, rest string) {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i], trimmed[i:]
	}
	return trimmed, "/"
}

// NormalizeHost lower-cases host and strips any port and trailing dot.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	host = strings.TrimSuffix(host, ".")
	return strings.ToLower(host)
}
