package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"clinic-core/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access-token claims issued by the auth service.
type Claims struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
	IsSuperuser bool     `json:"is_superuser"`
	jwt.RegisteredClaims
}

// JWTAuthenticator validates HS256 bearer tokens locally.
type JWTAuthenticator struct {
	secret []byte
}

func NewJWTAuthenticator(secret string) (*JWTAuthenticator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &JWTAuthenticator{secret: []byte(secret)}, nil
}

var _ Authenticator = (*JWTAuthenticator)(nil)

func (a *JWTAuthenticator) CurrentUser(r *http.Request) (*domain.User, error) {
	raw := bearerToken(r)
	if raw == "" {
		return nil, nil
	}
	claims, err := a.ValidateToken(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: token has no user_id", ErrInvalidCredentials)
	}
	return &domain.User{
		ID:          claims.UserID,
		Username:    claims.Username,
		IsSuperuser: claims.IsSuperuser,
		Roles:       claims.Roles,
	}, nil
}

func (a *JWTAuthenticator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// IssueToken signs claims for user. Used by clinicctl and tests.
func (a *JWTAuthenticator) IssueToken(user *domain.User, expiry time.Duration) (string, error) {
	claims := Claims{
		UserID:      user.ID,
		Username:    user.Username,
		Roles:       user.Roles,
		IsSuperuser: user.IsSuperuser,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
