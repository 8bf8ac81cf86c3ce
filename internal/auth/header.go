package auth

import (
	"net/http"
	"strconv"

	"clinic-core/internal/domain"
)

// Headers set by the trusted gateway in front of clinic-core.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserName  = "X-User-Name"
	HeaderUserRoles = "X-User-Roles"
	HeaderSuperuser = "X-User-Superuser"
)

// HeaderAuthenticator trusts identity headers injected by an upstream
// gateway. Only use it behind one that strips client-supplied copies.
type HeaderAuthenticator struct{}

var _ Authenticator = HeaderAuthenticator{}

func (HeaderAuthenticator) CurrentUser(r *http.Request) (*domain.User, error) {
	id := r.Header.Get(HeaderUserID)
	if id == "" {
		return nil, nil
	}
	superuser := false
	if v := r.Header.Get(HeaderSuperuser); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, ErrInvalidCredentials
		}
		superuser = b
	}
	return &domain.User{
		ID:          id,
		Username:    r.Header.Get(HeaderUserName),
		IsSuperuser: superuser,
		Roles:       splitRoles(r.Header.Get(HeaderUserRoles)),
	}, nil
}
