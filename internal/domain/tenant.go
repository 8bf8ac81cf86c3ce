package domain

import "time"

// Tenant status values (tenants.status).
const (
	TenantStatusActive    = "active"
	TenantStatusSuspended = "suspended"
	TenantStatusDeleted   = "deleted"
)

// Tenant is one clinic and its schema in the public tenants table.
// Slug doubles as the Postgres schema name and never changes.
type Tenant struct {
	Slug        string    `db:"slug" json:"slug"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Status      string    `db:"status" json:"status"` // active | suspended | deleted
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// IsActive reports whether requests may be served for the tenant.
func (t *Tenant) IsActive() bool {
	return t.Status == "" || t.Status == TenantStatusActive
}

// Domain maps a hostname to exactly one tenant (public domains table).
type Domain struct {
	Hostname   string `db:"hostname" json:"hostname"`
	TenantSlug string `db:"tenant_slug" json:"tenant_slug"`
	IsPrimary  bool   `db:"is_primary" json:"is_primary"`
}
