// Package metrics holds the exporter's own operational series. Probe
// measurements are rendered per request by the HTTP layer and never touch
// this registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ring_exporter"

type Metrics struct {
	ReconcileRuns     prometheus.Counter
	ReconcileFailures prometheus.Counter
	SessionsTotal     prometheus.Gauge
	SessionsHealthy   prometheus.Gauge
	ProbeRequests     prometheus.Counter
	ProbeResults      *prometheus.CounterVec
}

// New registers the exporter series on reg and returns their handles.
// Передавайте отдельный prometheus.NewRegistry(), чтобы не тащить
// стандартные go_* коллекторы в выдачу /metrics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ReconcileRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Reconcile cycles started.",
		}),
		ReconcileFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_failures_total",
			Help:      "Reconcile cycles that failed to sync the node directory.",
		}),
		SessionsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "SSH sessions currently tracked.",
		}),
		SessionsHealthy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_healthy",
			Help:      "SSH sessions in the healthy state.",
		}),
		ProbeRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_requests_total",
			Help:      "Probe requests accepted by the HTTP API.",
		}),
		ProbeResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_results_total",
			Help:      "Per-node probe outcomes by status.",
		}, []string{"status"}),
	}
}
