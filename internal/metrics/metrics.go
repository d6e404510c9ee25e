// Package metrics exposes Prometheus metrics for firings, alerts and deliveries.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the service updates.
type Metrics struct {
	FiringsTotal        *prometheus.CounterVec   // by schedule, scope, status
	FiringDuration      *prometheus.HistogramVec // by schedule
	NewAlertsTotal      *prometheus.CounterVec   // by rule key
	DeliveriesTotal     *prometheus.CounterVec   // by channel, result
	ActiveTimers        prometheus.Gauge
	RebuildsTotal       *prometheus.CounterVec // by result
	ResolverCacheEvents *prometheus.CounterVec // hit, miss
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		FiringsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_firings_total",
				Help: "Timer firings by schedule, scope and outcome status",
			},
			[]string{"schedule_id", "scope", "status"},
		),
		FiringDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "alert_firing_duration_seconds",
				Help:    "Duration of one firing from fetch to audit",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"schedule_id"},
		),
		NewAlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_new_alerts_total",
				Help: "First-time matches recorded in the ledger by rule",
			},
			[]string{"rule_key"},
		),
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_deliveries_total",
				Help: "Notification deliveries by channel and result",
			},
			[]string{"channel", "result"}, // result: success, error
		),
		ActiveTimers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alert_active_timers",
			Help: "Timers currently registered by the schedule registry",
		}),
		RebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_timer_rebuilds_total",
				Help: "Timer registry rebuilds by result",
			},
			[]string{"result"},
		),
		ResolverCacheEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alert_schedule_resolver_cache_total",
				Help: "Schedule resolver cache lookups by outcome",
			},
			[]string{"outcome"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.FiringsTotal, m.FiringDuration, m.NewAlertsTotal, m.DeliveriesTotal,
		m.ActiveTimers, m.RebuildsTotal, m.ResolverCacheEvents,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return m, nil
}

// NewNop returns metrics registered on a private registry. Used by tests.
func NewNop() *Metrics {
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		panic(err)
	}
	return m
}

// ObserveFiring records one finished firing.
func (m *Metrics) ObserveFiring(scheduleID, scope, status string, elapsed time.Duration) {
	m.FiringsTotal.WithLabelValues(scheduleID, scope, status).Inc()
	m.FiringDuration.WithLabelValues(scheduleID).Observe(elapsed.Seconds())
}

// ObserveDelivery records one channel delivery attempt.
func (m *Metrics) ObserveDelivery(channel string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.DeliveriesTotal.WithLabelValues(channel, result).Inc()
}
