package auth

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"clinic-core/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ValidateRequest is the body of the auth service's validate call.
type ValidateRequest struct {
	Token string `json:"token"`
}

// ValidateResponse is the auth service's answer.
type ValidateResponse struct {
	Valid       bool     `json:"valid"`
	TTLSeconds  int64    `json:"ttl_seconds"`
	UserID      int64    `json:"user_id"`
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
	IsSuperuser bool     `json:"is_superuser"`
}

// RemoteAuthenticator asks the auth service to validate bearer tokens.
type RemoteAuthenticator struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

func NewRemoteAuthenticator(baseURL string, timeout time.Duration, logger *zap.Logger) *RemoteAuthenticator {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &RemoteAuthenticator{httpClient: client, logger: logger}
}

var _ Authenticator = (*RemoteAuthenticator)(nil)

func (a *RemoteAuthenticator) CurrentUser(r *http.Request) (*domain.User, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, nil
	}

	var result ValidateResponse
	resp, err := a.httpClient.R().
		SetContext(r.Context()).
		SetBody(ValidateRequest{Token: token}).
		SetResult(&result).
		SetError(&result).
		Post("/api/v1/auth/validate")
	if err != nil {
		return nil, fmt.Errorf("auth service unreachable: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized:
		return nil, ErrInvalidCredentials
	case resp.IsError():
		a.logger.Warn("auth service returned error", zap.Int("status", resp.StatusCode()))
		return nil, fmt.Errorf("auth service returned status %d", resp.StatusCode())
	case !result.Valid:
		return nil, ErrInvalidCredentials
	}

	return &domain.User{
		ID:          strconv.FormatInt(result.UserID, 10),
		Username:    result.Username,
		IsSuperuser: result.IsSuperuser,
		Roles:       result.Roles,
	}, nil
}
