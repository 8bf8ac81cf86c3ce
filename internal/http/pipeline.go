package httpapi

import (
	"context"
	"errors"
	"net/http"

	"clinic-core/internal/auth"
	"clinic-core/internal/domain"
	"clinic-core/internal/repository"
	"clinic-core/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Route ids of the core screens guarded by this API.
const (
	RouteRolePermissions = "core:role_permissions"
	RouteAccessLog       = "core:access_log"
)

const (
	actionView   = domain.ActionView
	actionEdit   = domain.ActionEdit
	actionDelete = domain.ActionDelete
	actionExport = domain.ActionExport
)

// HeaderRequestID is echoed back on every response.
const HeaderRequestID = "X-Request-Id"

// Pipeline is the per-request chain: request metadata, tenant resolution
// and partition activation, current user, then per-route authorization.
type Pipeline struct {
	resolver  *service.TenantResolver
	activator repository.PartitionActivator
	authn     auth.Authenticator
	engine    *service.PermissionEngine
	logger    *zap.Logger
}

func NewPipeline(resolver *service.TenantResolver, activator repository.PartitionActivator,
	authn auth.Authenticator, engine *service.PermissionEngine, logger *zap.Logger) *Pipeline {
	return &Pipeline{resolver: resolver, activator: activator, authn: authn, engine: engine, logger: logger}
}

// Wrap applies the whole chain to next.
func (p *Pipeline) Wrap(next http.Handler) http.Handler {
	return p.RequestMetaMiddleware(p.TenantMiddleware(p.AuthMiddleware(next)))
}

// RequestMetaMiddleware assigns a request id and records caller details.
func (p *Pipeline) RequestMetaMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := service.WithRequestMeta(r.Context(), service.RequestMeta{
			RequestID: id,
			IP:        ClientIP(r),
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantMiddleware binds the request to its tenant and activates the
// tenant's partition for the lifetime of the request. Downstream handlers
// see the path with any tenant prefix removed.
func (p *Pipeline) TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := p.resolver.ResolveTenant(r.Context(), r)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrTenantInactive):
				writeJSON(w, http.StatusNotFound, FailCode(ResultTenantInactive, MsgTenantInactive))
			default:
				writeJSON(w, http.StatusNotFound, FailCode(ResultTenantNotFound, MsgTenantNotFound))
			}
			return
		}

		part, err := p.activator.Activate(r.Context(), res.Tenant.Slug)
		if err != nil {
			p.logger.Error("activate tenant partition failed",
				zap.String("tenant", res.Tenant.Slug), zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, Fail("tenant storage unavailable"))
			return
		}
		// Runs on normal return and while a handler panic unwinds.
		defer part.Release()

		ctx := service.WithTenantContext(r.Context(), service.NewRequestTenantContext(res, part))
		next.ServeHTTP(w, withPath(r.WithContext(ctx), res.RemainingPath))
	})
}

// withPath returns r routed at path. r must already be a private copy.
func withPath(r *http.Request, path string) *http.Request {
	if r.URL.Path == path {
		return r
	}
	u := *r.URL
	u.Path = path
	u.RawPath = ""
	r.URL = &u
	return r
}

// AuthMiddleware establishes the current user. Requests without
// credentials continue anonymously; bad credentials are rejected.
func (p *Pipeline) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := p.authn.CurrentUser(r)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				writeJSON(w, http.StatusUnauthorized, FailCode(ResultInvalidCredentials, MsgInvalidCredentials))
				return
			}
			p.logger.Error("authentication service failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, Fail("authentication unavailable"))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// Require guards h with an authorization check for routeID and action.
// Anonymous callers are told to authenticate before any decision is made.
func (p *Pipeline) Require(routeID string, action domain.Action, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if user == nil {
			writeJSON(w, http.StatusUnauthorized, FailCode(ResultAuthenticationRequired, MsgAuthenticationRequired))
			return
		}
		if err := p.engine.Check(r.Context(), user, routeID, action); err != nil {
			if errors.Is(err, service.ErrPermissionDenied) {
				writeJSON(w, http.StatusForbidden, FailCode(ResultPermissionDenied, MsgPermissionDenied))
				return
			}
			writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
			return
		}
		h(w, r)
	}
}

type userCtxKey struct{}

func WithUser(ctx context.Context, u *domain.User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext returns the current user, or nil when anonymous.
func UserFromContext(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userCtxKey{}).(*domain.User)
	return u
}
