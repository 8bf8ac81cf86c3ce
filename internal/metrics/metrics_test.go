package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.TenantResolved("domain")
	m.TenantResolved("domain")
	m.TenantResolveFailed("not_resolved")
	m.Decision("view", "deny")
	m.AccessLogDropped(3)
	m.AccessLogWritten(2)
	m.CatalogLoaded(nil)
	m.CatalogLoaded(errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.resolutions.WithLabelValues("domain")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolveFailures.WithLabelValues("not_resolved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("view", "deny")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.accessLogDropped))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.accessLogWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.catalogLoads.WithLabelValues("error")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TenantResolved("path")
		m.TenantResolveFailed("inactive")
		m.Decision("edit", "allow")
		m.AccessLogDropped(1)
		m.AccessLogWritten(1)
		m.CatalogLoaded(nil)
	})
}
