package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqttcommon "clinic-core/common/mqtt"
	"clinic-core/internal/domain"
	"clinic-core/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// loopbackBus delivers published messages to every subscriber in process.
type loopbackBus struct {
	handlers  []mqttcommon.MessageHandler
	published [][]byte
	fail      bool
}

func (b *loopbackBus) Publish(topic string, _ byte, _ bool, payload []byte) error {
	if b.fail {
		return errors.New("not connected")
	}
	b.published = append(b.published, payload)
	for _, h := range b.handlers {
		_ = h(topic, payload)
	}
	return nil
}

func (b *loopbackBus) Subscribe(_ string, _ byte, handler mqttcommon.MessageHandler) error {
	b.handlers = append(b.handlers, handler)
	return nil
}

func TestCatalogService_SaveRoleGrantInvalidatesCache(t *testing.T) {
	store := seedClinicCatalog(t)
	cache := NewCatalogCache(store, time.Hour, zap.NewNop(), nil)
	svc := NewCatalogService(store, cache, nil, zap.NewNop())
	engine := NewPermissionEngine(cache, nil, true, zap.NewNop(), nil)

	ctx := acmeContext(RequestMeta{})
	p := PartitionFromContext(ctx)
	receptionist := &domain.User{ID: "r", Roles: []string{"receptionist"}}

	require.Equal(t, domain.Deny, engine.Authorize(ctx, receptionist, "core:patient_list", domain.ActionDelete))

	g, err := svc.SaveRoleGrant(ctx, p, SaveRoleGrantRequest{RoleCode: "receptionist", ResourceID: 11, Level: "full"})
	require.NoError(t, err)
	assert.True(t, g.CanDelete)

	assert.Equal(t, domain.Allow, engine.Authorize(ctx, receptionist, "core:patient_list", domain.ActionDelete))
}

func TestCatalogService_SaveRoleGrantNormalizesWrite(t *testing.T) {
	store := seedClinicCatalog(t)
	svc := NewCatalogService(store, NewCatalogCache(store, time.Hour, zap.NewNop(), nil), nil, zap.NewNop())
	p := &repository.Partition{Tenant: "acme"}

	g, err := svc.SaveRoleGrant(context.Background(), p, SaveRoleGrantRequest{RoleCode: "nurse", ResourceID: 11, Level: "write"})
	require.NoError(t, err)
	assert.True(t, g.CanView)
	assert.True(t, g.CanCreate)
	assert.True(t, g.CanEdit)
	assert.False(t, g.CanDelete)
}

func TestCatalogService_Validation(t *testing.T) {
	store := seedClinicCatalog(t)
	svc := NewCatalogService(store, NewCatalogCache(store, time.Hour, zap.NewNop(), nil), nil, zap.NewNop())
	p := &repository.Partition{Tenant: "acme"}
	ctx := context.Background()

	_, err := svc.SaveRoleGrant(ctx, p, SaveRoleGrantRequest{ResourceID: 11, Level: "read"})
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = svc.SaveRoleGrant(ctx, p, SaveRoleGrantRequest{RoleCode: "x", Level: "read"})
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = svc.SaveRoleGrant(ctx, p, SaveRoleGrantRequest{RoleCode: "x", ResourceID: 11, Level: "owner"})
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = svc.SaveRoleGrant(ctx, p, SaveRoleGrantRequest{RoleCode: "x", ResourceID: 999, Level: "read"})
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestCatalogService_ResourceEdits(t *testing.T) {
	store := seedClinicCatalog(t)
	cache := NewCatalogCache(store, time.Hour, zap.NewNop(), nil)
	svc := NewCatalogService(store, cache, nil, zap.NewNop())
	engine := NewPermissionEngine(cache, nil, true, zap.NewNop(), nil)
	ctx := acmeContext(RequestMeta{})
	p := PartitionFromContext(ctx)
	user := &domain.User{ID: "r", Roles: []string{"receptionist"}}

	require.Len(t, engine.BuildMenu(ctx, user)[0].Resources, 2)

	require.NoError(t, svc.SetResourceActive(ctx, p, 10, false))
	assert.Len(t, engine.BuildMenu(ctx, user)[0].Resources, 1)

	require.NoError(t, svc.DeleteResource(ctx, p, 11))
	assert.Empty(t, engine.BuildMenu(ctx, user))

	assert.True(t, errors.Is(svc.DeleteResource(ctx, p, 11), repository.ErrNotFound))
	assert.True(t, errors.Is(svc.DeleteRoleGrant(ctx, p, "receptionist", 11), repository.ErrNotFound))
}

func TestInvalidationBus_PeersDropSnapshots(t *testing.T) {
	store := seedClinicCatalog(t)
	bus := &loopbackBus{}

	localCache := NewCatalogCache(store, time.Hour, zap.NewNop(), nil)
	peerCache := NewCatalogCache(store, time.Hour, zap.NewNop(), nil)
	local := NewInvalidationBus(bus, "clinic/catalog", 1, "node-a", localCache, zap.NewNop())
	peer := NewInvalidationBus(bus, "clinic/catalog", 1, "node-b", peerCache, zap.NewNop())
	require.NoError(t, local.Listen())
	require.NoError(t, peer.Listen())

	ctx := acmeContext(RequestMeta{})
	p := PartitionFromContext(ctx)
	before, err := peerCache.Catalog(ctx, p)
	require.NoError(t, err)

	svc := NewCatalogService(store, localCache, local, zap.NewNop())
	_, err = svc.SaveRoleGrant(ctx, p, SaveRoleGrantRequest{RoleCode: "receptionist", ResourceID: 20, Level: "read"})
	require.NoError(t, err)

	require.Len(t, bus.published, 1)
	var msg InvalidationMessage
	require.NoError(t, json.Unmarshal(bus.published[0], &msg))
	assert.Equal(t, InvalidationMessage{Tenant: "acme", Origin: "node-a"}, msg)

	after, err := peerCache.Catalog(ctx, p)
	require.NoError(t, err)
	assert.NotSame(t, before, after, "peer reloaded after the broadcast")
	_, ok := after.Grant("receptionist", 20)
	assert.True(t, ok)
}

func TestInvalidationBus_HandleMessage(t *testing.T) {
	store := seedClinicCatalog(t)
	cache := NewCatalogCache(store, time.Hour, zap.NewNop(), nil)
	b := NewInvalidationBus(&loopbackBus{}, "t", 0, "me", cache, zap.NewNop())

	assert.Error(t, b.HandleMessage("t", []byte("{")))
	assert.NoError(t, b.HandleMessage("t", []byte(`{"tenant":"","origin":"other"}`)))
	assert.NoError(t, b.HandleMessage("t", []byte(`{"tenant":"acme","origin":"me"}`)))
}

func TestCatalogService_BroadcastFailureIsNotFatal(t *testing.T) {
	store := seedClinicCatalog(t)
	cache := NewCatalogCache(store, time.Hour, zap.NewNop(), nil)
	bus := NewInvalidationBus(&loopbackBus{fail: true}, "t", 0, "me", cache, zap.NewNop())
	svc := NewCatalogService(store, cache, bus, zap.NewNop())

	_, err := svc.SaveRoleGrant(context.Background(), &repository.Partition{Tenant: "acme"},
		SaveRoleGrantRequest{RoleCode: "x", ResourceID: 10, Level: "read"})
	assert.NoError(t, err)
}

func TestCatalogService_RoleGrants(t *testing.T) {
	store := seedClinicCatalog(t)
	cache := NewCatalogCache(store, time.Hour, zap.NewNop(), nil)
	svc := NewCatalogService(store, cache, nil, zap.NewNop())
	p := &repository.Partition{Tenant: "acme"}
	ctx := context.Background()

	routes := func(views []RoleGrantView) []string {
		var out []string
		for _, v := range views {
			out = append(out, v.RouteID)
		}
		return out
	}

	views, err := svc.RoleGrants(ctx, p, "dentist")
	require.NoError(t, err)
	assert.Equal(t, []string{"core:dashboard", "core:patient_list", "core:old_page", "core:reports"}, routes(views))
	assert.Equal(t, "Clinic", views[0].ModuleName)
	assert.Equal(t, "Hidden", views[3].ModuleName)
	assert.False(t, views[2].ResourceActive)
	assert.True(t, views[1].OwnRecordsOnly)

	_, err = svc.SaveRoleGrant(ctx, p, SaveRoleGrantRequest{RoleCode: "dentist", ResourceID: 21, Level: "read"})
	require.NoError(t, err)
	views, err = svc.RoleGrants(ctx, p, "dentist")
	require.NoError(t, err)
	assert.Equal(t, []string{"core:dashboard", "core:patient_list", "core:old_page", "core:access_log", "core:reports"}, routes(views))

	none, err := svc.RoleGrants(ctx, p, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = svc.RoleGrants(ctx, p, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
