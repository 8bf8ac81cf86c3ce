package repository

import (
	"context"
	"testing"
	"time"

	"clinic-core/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAccessLogStore_FilterAndOrder(t *testing.T) {
	s := NewMemoryAccessLogStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	alice, bob := "alice", "bob"

	require.NoError(t, s.WriteAccessLogs(ctx, []domain.AccessLogEntry{
		{TenantSlug: "acme", UserID: &alice, RouteID: "a", At: base},
		{TenantSlug: "acme", UserID: &bob, RouteID: "a", At: base.Add(time.Hour)},
		{TenantSlug: "acme", UserID: &alice, RouteID: "b", At: base.Add(2 * time.Hour)},
		{TenantSlug: "beta", UserID: &alice, RouteID: "a", At: base},
	}))
	assert.Equal(t, 3, s.Len("acme"))

	p := &Partition{Tenant: "acme"}
	all, err := s.ListAccessLogs(ctx, p, AccessLogFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[0].RouteID, "newest first")
	assert.NotEmpty(t, all[0].ID)

	mine, err := s.ListAccessLogs(ctx, p, AccessLogFilter{UserID: "alice"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	window, err := s.ListAccessLogs(ctx, p, AccessLogFilter{From: base.Add(time.Minute), To: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, &bob, window[0].UserID)

	limited, err := s.ListAccessLogs(ctx, p, AccessLogFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemoryAccessLogStore_ReplayedIDsAreIgnored(t *testing.T) {
	s := NewMemoryAccessLogStore()
	ctx := context.Background()
	e := domain.AccessLogEntry{ID: "fixed", TenantSlug: "acme", RouteID: "a", At: time.Now()}

	require.NoError(t, s.WriteAccessLogs(ctx, []domain.AccessLogEntry{e}))
	require.NoError(t, s.WriteAccessLogs(ctx, []domain.AccessLogEntry{e, {TenantSlug: "acme", RouteID: "b"}}))
	assert.Equal(t, 2, s.Len("acme"))

	err := s.WriteAccessLogs(ctx, []domain.AccessLogEntry{{RouteID: "c"}})
	require.Error(t, err)
	require.Len(t, FailedTenants(err), 1)
	assert.Equal(t, 2, s.Len("acme"))
}
