package service

import "errors"

var (
	// ErrTenantNotResolved: no resolution step produced a tenant and no
	// default tenant exists.
	ErrTenantNotResolved = errors.New("tenant not resolved")

	// ErrTenantInactive: a tenant was found but is suspended or deleted.
	ErrTenantInactive = errors.New("tenant inactive")

	// ErrPermissionDenied: the user holds no grant for the action.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrCatalogUnavailable: the permission catalog could not be read.
	ErrCatalogUnavailable = errors.New("permission catalog unavailable")

	// ErrLogSinkFailure: an access-log batch could not be persisted.
	ErrLogSinkFailure = errors.New("access log sink failure")
)
