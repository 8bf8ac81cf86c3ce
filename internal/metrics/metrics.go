// Package metrics holds the Prometheus collectors for tenant resolution,
// authorization and the access log.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "clinic_core"

// Metrics is safe to use through a nil pointer; every recorder is then a no-op.
type Metrics struct {
	resolutions      *prometheus.CounterVec
	resolveFailures  *prometheus.CounterVec
	decisions        *prometheus.CounterVec
	accessLogDropped prometheus.Counter
	accessLogWritten prometheus.Counter
	catalogLoads     *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tenant",
			Name:      "resolutions_total",
			Help:      "Requests bound to a tenant, by resolution strategy.",
		}, []string{"strategy"}),
		resolveFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tenant",
			Name:      "resolution_failures_total",
			Help:      "Requests that could not be bound to a tenant, by reason.",
		}, []string{"reason"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "permission",
			Name:      "decisions_total",
			Help:      "Authorization decisions, by action and outcome.",
		}, []string{"action", "decision"}),
		accessLogDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "access_log",
			Name:      "dropped_total",
			Help:      "Access log entries dropped because the buffer was full or the sink failed.",
		}),
		accessLogWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "access_log",
			Name:      "written_total",
			Help:      "Access log entries handed to the sink successfully.",
		}),
		catalogLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "loads_total",
			Help:      "Permission catalog loads from the store, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.resolutions, m.resolveFailures, m.decisions,
		m.accessLogDropped, m.accessLogWritten, m.catalogLoads)
	return m
}

func (m *Metrics) TenantResolved(strategy string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(strategy).Inc()
}

func (m *Metrics) TenantResolveFailed(reason string) {
	if m == nil {
		return
	}
	m.resolveFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) Decision(action, decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(action, decision).Inc()
}

func (m *Metrics) AccessLogDropped(n int) {
	if m == nil {
		return
	}
	m.accessLogDropped.Add(float64(n))
}

func (m *Metrics) AccessLogWritten(n int) {
	if m == nil {
		return
	}
	m.accessLogWritten.Add(float64(n))
}

func (m *Metrics) CatalogLoaded(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.catalogLoads.WithLabelValues(result).Inc()
}
