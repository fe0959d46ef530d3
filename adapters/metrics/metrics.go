// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for metergate.
type Collector struct {
	// Admission metrics
	AdmissionsTotal  *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Quota metrics
	QuotaUsed *prometheus.GaugeVec

	// Ledger metrics
	RecorderDropped prometheus.Counter

	// Billing webhook metrics
	WebhookEvents *prometheus.CounterVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered on the default registry.
func New() *Collector {
	return newCollector(promauto.With(prometheus.DefaultRegisterer))
}

// NewWithRegistry creates a collector on a private registry (tests).
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	return newCollector(promauto.With(reg))
}

func newCollector(factory promauto.Factory) *Collector {
	return &Collector{
		AdmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "admissions_total",
				Help:      "Admission decisions by outcome",
			},
			[]string{"outcome", "plan_id"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "metergate",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "metergate",
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),
		QuotaUsed: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "metergate",
				Name:      "quota_used_ratio",
				Help:      "Fraction of the monthly quota consumed",
			},
			[]string{"customer_id", "plan_id"},
		),
		RecorderDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "usage_events_dropped_total",
				Help:      "Usage events dropped because the recorder buffer was full",
			},
		),
		WebhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "billing_webhook_events_total",
				Help:      "Billing webhook events by type and result",
			},
			[]string{"event_type", "result"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "config_reloads_total",
				Help:      "Successful configuration reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "metergate",
				Name:      "config_reload_errors_total",
				Help:      "Failed configuration reloads",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "metergate",
				Name:      "config_last_reload_timestamp",
				Help:      "Unix time of the last successful config reload",
			},
		),
	}
}
