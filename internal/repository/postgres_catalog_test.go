package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"clinic-core/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockPartition(t *testing.T) (*Partition, sqlmock.Sqlmock, func()) {
	db, mock, cleanup := setupMockDB(t)
	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	return NewStaticPartition("acme", conn), mock, func() {
		_ = conn.Close()
		cleanup()
	}
}

func TestPostgresCatalogStore_LoadCatalog(t *testing.T) {
	p, mock, cleanup := setupMockPartition(t)
	defer cleanup()

	mock.ExpectQuery(`FROM modules`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "icon", "display_order", "active"}).
			AddRow(1, "Patients", "users", 10, true).
			AddRow(2, "Billing", "", 20, false))
	mock.ExpectQuery(`FROM resources`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "module_id", "name", "route_id", "url_pattern", "icon",
			"display_order", "active", "requires_view", "requires_create", "requires_edit", "requires_delete"}).
			AddRow(10, 1, "Patient list", "core:patient_list", "/patients/", "", 1, true, true, true, true, false))
	mock.ExpectQuery(`FROM role_grants`).
		WillReturnRows(sqlmock.NewRows([]string{"role_code", "resource_id", "level", "can_view", "can_create",
			"can_edit", "can_delete", "can_export", "own_records_only", "updated_at"}).
			AddRow("doctor", 10, "write", true, true, true, false, false, false, time.Now()))

	catalog, err := NewPostgresCatalogStore().LoadCatalog(context.Background(), p)
	require.NoError(t, err)

	r, ok := catalog.ActiveResource("core:patient_list")
	require.True(t, ok)
	assert.Equal(t, int64(10), r.ID)
	assert.Equal(t, "/patients/", r.URLPattern)

	g, ok := catalog.Grant("doctor", 10)
	require.True(t, ok)
	assert.Equal(t, domain.LevelWrite, g.Level)
	assert.Len(t, catalog.ActiveModules(), 1)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalogStore_LoadCatalog_Error(t *testing.T) {
	p, mock, cleanup := setupMockPartition(t)
	defer cleanup()

	mock.ExpectQuery(`FROM modules`).WillReturnError(errors.New("relation \"modules\" does not exist"))

	_, err := NewPostgresCatalogStore().LoadCatalog(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load modules")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalogStore_RequiresPartition(t *testing.T) {
	store := NewPostgresCatalogStore()
	_, err := store.LoadCatalog(context.Background(), &Partition{Tenant: "acme"})
	assert.True(t, errors.Is(err, ErrNoPartition))
	_, err = store.LoadCatalog(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrNoPartition))
}

func TestPostgresCatalogStore_SaveRoleGrant_Normalizes(t *testing.T) {
	p, mock, cleanup := setupMockPartition(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO role_grants .* ON CONFLICT \(role_code, resource_id\) DO UPDATE`).
		WithArgs("nurse", int64(10), "read", true, false, false, false, true, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	g := &domain.RoleGrant{
		RoleCode: "nurse", ResourceID: 10, Level: domain.LevelRead,
		CanCreate: true, CanDelete: true, CanExport: true,
	}
	require.NoError(t, NewPostgresCatalogStore().SaveRoleGrant(context.Background(), p, g))
	assert.True(t, g.CanView)
	assert.False(t, g.CanCreate)
	assert.False(t, g.CanDelete)
	assert.True(t, g.CanExport)
	assert.False(t, g.UpdatedAt.IsZero())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalogStore_SaveRoleGrant_Invalid(t *testing.T) {
	p, mock, cleanup := setupMockPartition(t)
	defer cleanup()

	store := NewPostgresCatalogStore()
	err := store.SaveRoleGrant(context.Background(), p, &domain.RoleGrant{RoleCode: "nurse", ResourceID: 10, Level: "admin"})
	assert.Error(t, err)
	err = store.SaveRoleGrant(context.Background(), p, &domain.RoleGrant{ResourceID: 10, Level: domain.LevelRead})
	assert.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalogStore_SetResourceActive(t *testing.T) {
	p, mock, cleanup := setupMockPartition(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE resources SET active = \$2 WHERE id = \$1`).
		WithArgs(int64(10), false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE resources SET active = \$2 WHERE id = \$1`).
		WithArgs(int64(99), true).
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPostgresCatalogStore()
	require.NoError(t, store.SetResourceActive(context.Background(), p, 10, false))
	err := store.SetResourceActive(context.Background(), p, 99, true)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCatalogStore_Deletes(t *testing.T) {
	p, mock, cleanup := setupMockPartition(t)
	defer cleanup()

	mock.ExpectExec(`DELETE FROM resources WHERE id = \$1`).
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM role_grants WHERE role_code = \$1 AND resource_id = \$2`).
		WithArgs("doctor", int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPostgresCatalogStore()
	require.NoError(t, store.DeleteResource(context.Background(), p, 10))
	err := store.DeleteRoleGrant(context.Background(), p, "doctor", 11)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, mock.ExpectationsWereMet())
}
