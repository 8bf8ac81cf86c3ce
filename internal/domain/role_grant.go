package domain

import (
	"fmt"
	"time"
)

// AccessLevel is the coarse level of a RoleGrant.
type AccessLevel string

const (
	LevelRead  AccessLevel = "read"
	LevelWrite AccessLevel = "write"
	LevelFull  AccessLevel = "full"
)

// ParseAccessLevel validates s.
func ParseAccessLevel(s string) (AccessLevel, error) {
	switch l := AccessLevel(s); l {
	case LevelRead, LevelWrite, LevelFull:
		return l, nil
	}
	return "", fmt.Errorf("invalid access level: %q (must be read, write or full)", s)
}

// RoleGrant links one role to one resource (role_grants table).
// RoleCode matches the role name held by the authentication subsystem by
// value; it is not a foreign key into this database.
type RoleGrant struct {
	RoleCode   string      `db:"role_code" json:"role_code"`
	ResourceID int64       `db:"resource_id" json:"resource_id"`
	Level      AccessLevel `db:"level" json:"level"`

	CanView   bool `db:"can_view" json:"can_view"`
	CanCreate bool `db:"can_create" json:"can_create"`
	CanEdit   bool `db:"can_edit" json:"can_edit"`
	CanDelete bool `db:"can_delete" json:"can_delete"`
	CanExport bool `db:"can_export" json:"can_export"`

	// Persisted for views that filter rows by owner; not evaluated here.
	OwnRecordsOnly bool `db:"own_records_only" json:"own_records_only"`

	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Normalize overwrites the view/create/edit/delete flags from Level.
// It must run before every save. CanExport is left untouched.
func (g *RoleGrant) Normalize() {
	switch g.Level {
	case LevelRead:
		g.CanView, g.CanCreate, g.CanEdit, g.CanDelete = true, false, false, false
	case LevelWrite:
		g.CanView, g.CanCreate, g.CanEdit, g.CanDelete = true, true, true, false
	case LevelFull:
		g.CanView, g.CanCreate, g.CanEdit, g.CanDelete = true, true, true, true
	}
}

// Capability reports what the grant says about action.
func (g *RoleGrant) Capability(a Action) Capability {
	var set bool
	switch a {
	case ActionView:
		set = g.CanView
	case ActionCreate:
		set = g.CanCreate
	case ActionEdit:
		set = g.CanEdit
	case ActionDelete:
		set = g.CanDelete
	case ActionExport:
		set = g.CanExport
	}
	if set {
		return CapabilityAllow
	}
	return CapabilityUnset
}
