package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"clinic-core/internal/domain"
	"clinic-core/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestAccessLogExporter_ExportXLSX(t *testing.T) {
	store := repository.NewMemoryAccessLogStore()
	user := "42"
	res := int64(11)
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, store.WriteAccessLogs(context.Background(), []domain.AccessLogEntry{
		{TenantSlug: "acme", UserID: &user, ResourceID: &res, RouteID: "core:patient_list",
			Action: domain.ActionEdit, Decision: "deny", IP: "10.0.0.1", UserAgent: "curl/8", At: at},
		{TenantSlug: "beta", RouteID: "core:patient_list", Action: domain.ActionView, Decision: "allow", At: at},
	}))

	data, n, err := NewAccessLogExporter(store).ExportXLSX(context.Background(),
		&repository.Partition{Tenant: "acme"}, repository.AccessLogFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(accessLogSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, accessLogExportHeader, rows[0])
	assert.Equal(t, "2024-05-01 09:30:00", rows[1][0])
	assert.Equal(t, "42", rows[1][1])
	assert.Equal(t, "core:patient_list", rows[1][2])
	assert.Equal(t, "11", rows[1][3])
	assert.Equal(t, "edit", rows[1][4])
	assert.Equal(t, "deny", rows[1][5])
}

func TestAccessLogExporter_EmptyLog(t *testing.T) {
	data, n, err := NewAccessLogExporter(repository.NewMemoryAccessLogStore()).ExportXLSX(context.Background(),
		&repository.Partition{Tenant: "acme"}, repository.AccessLogFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(accessLogSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
