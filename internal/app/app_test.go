package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clinic-core/internal/auth"
	"clinic-core/internal/config"
	"clinic-core/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func memoryConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Tenant.Default = "public"
	cfg.Tenant.CacheTTL = time.Minute
	cfg.Permission.FailOpen = true
	cfg.Permission.CatalogCacheTTL = time.Minute
	cfg.Auth.Mode = config.AuthModeHeader
	cfg.AccessLog.Mode = config.AccessLogDirect
	cfg.AccessLog.Stream = "clinic:access_log"
	cfg.AccessLog.Group = "drainers"
	cfg.AccessLog.Consumer = "test"
	return cfg
}

func get(h http.Handler, target string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

var manager = map[string]string{auth.HeaderUserID: "m1", auth.HeaderUserRoles: "manager"}

func TestNew_MemoryMode(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := New(ctx, memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, a.DB)
	assert.Nil(t, a.Redis)
	assert.Nil(t, a.Drainer)
	a.Start(ctx)
	h := a.Handler()

	w := get(h, "http://acme.localhost/api/v1/permissions/check?route=core:access_log&action=export", manager)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"decision":"allow"`)

	w = get(h, "http://localhost/api/v1/context", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"strategy":"default"`)

	w = get(h, "http://localhost/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `clinic_core_tenant_resolutions_total{strategy="domain"} 1`)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	a.Close(closeCtx)

	logs, ok := a.LogReader.(*repository.MemoryAccessLogStore)
	require.True(t, ok)
	assert.Equal(t, 1, logs.Len("acme"))
}

func TestNew_StreamModeDrainsThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisEnabled = true
	cfg.Redis.Addr = mr.Addr()
	cfg.AccessLog.Mode = config.AccessLogStream

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := New(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, a.Redis)
	require.NotNil(t, a.Drainer)
	a.Start(ctx)

	w := get(a.Handler(), "http://acme.localhost/api/v1/permissions/check?route=core:dashboard&action=view", manager)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	logs := a.LogReader.(*repository.MemoryAccessLogStore)
	assert.Eventually(t, func() bool { return logs.Len("acme") == 1 }, 10*time.Second, 50*time.Millisecond)

	cancel()
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	a.Close(closeCtx)
}

func TestApp_InvalidateTenant(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisEnabled = true
	cfg.Redis.Addr = mr.Addr()

	ctx := context.Background()
	a, err := New(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close(ctx)
	require.NotNil(t, a.TenantCache)

	h := a.Handler()
	require.Equal(t, http.StatusOK, get(h, "http://acme.localhost/api/v1/context", nil).Code)
	require.Equal(t, http.StatusOK, get(h, "http://localhost/api/v1/context?tenant=acme", nil).Code)
	assert.True(t, mr.Exists("tenant:host:acme.localhost"))
	assert.True(t, mr.Exists("tenant:slug:acme"))

	require.NoError(t, a.InvalidateTenant(ctx, "acme"))
	assert.False(t, mr.Exists("tenant:host:acme.localhost"))
	assert.False(t, mr.Exists("tenant:slug:acme"))

	memory, err := New(ctx, memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	defer memory.Close(ctx)
	assert.NoError(t, memory.InvalidateTenant(ctx, "acme"))
}

func TestNew_UnreachableRedisIsOptional(t *testing.T) {
	cfg := memoryConfig()
	cfg.RedisEnabled = true
	cfg.Redis.Addr = "127.0.0.1:1"
	cfg.AccessLog.Mode = config.AccessLogStream

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, a.Redis)
	assert.Nil(t, a.Drainer)
	a.Close(context.Background())
}

func TestNew_RejectsUnknownAuthMode(t *testing.T) {
	cfg := memoryConfig()
	cfg.Auth.Mode = "ldap"
	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)

	cfg.Auth.Mode = config.AuthModeJWT
	_, err = New(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err, "jwt mode needs a secret")
}
