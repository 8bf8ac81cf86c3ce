package httpapi

import (
	"context"
	"net/http"
	"time"

	"clinic-core/internal/domain"
	"clinic-core/internal/repository"

	"go.uber.org/zap"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PlatformHandler serves routes that are not bound to any tenant.
type PlatformHandler struct {
	dir    repository.TenantDirectory
	db     Pinger
	logger *zap.Logger
}

// NewPlatformHandler creates the handler. db may be nil in memory mode.
func NewPlatformHandler(dir repository.TenantDirectory, db Pinger, logger *zap.Logger) *PlatformHandler {
	return &PlatformHandler{dir: dir, db: db, logger: logger}
}

// Healthz GET /healthz
func (h *PlatformHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.Warn("health check: database unreachable", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, Fail("database unreachable"))
			return
		}
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
}

type tenantView struct {
	Slug          string `json:"slug"`
	DisplayName   string `json:"display_name"`
	PrimaryDomain string `json:"primary_domain,omitempty"`
	Path          string `json:"path"`
}

// ListTenants GET /tenants
// Lists active clinics with the addresses they can be reached at.
func (h *PlatformHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.dir.ListTenants(r.Context(), domain.TenantStatusActive)
	if err != nil {
		h.logger.Error("list tenants failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}
	out := make([]tenantView, 0, len(tenants))
	for _, t := range tenants {
		v := tenantView{Slug: t.Slug, DisplayName: t.DisplayName, Path: "/" + t.Slug + "/"}
		domains, err := h.dir.ListDomains(r.Context(), t.Slug)
		if err != nil {
			h.logger.Warn("list domains failed", zap.String("tenant", t.Slug), zap.Error(err))
		}
		for _, d := range domains {
			if d.IsPrimary {
				v.PrimaryDomain = d.Hostname
				break
			}
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, Ok(out))
}
