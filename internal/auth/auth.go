// Package auth establishes the current user of a request. Authentication
// itself is owned by an external service; these authenticators only read
// what it issued.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"clinic-core/internal/domain"
)

// ErrInvalidCredentials is returned when the request carries credentials
// that cannot be accepted. Requests without credentials are anonymous, not
// invalid.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Authenticator returns the current user, or nil for an anonymous request.
type Authenticator interface {
	CurrentUser(r *http.Request) (*domain.User, error)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func splitRoles(s string) []string {
	var roles []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}
