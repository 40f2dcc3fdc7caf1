package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cycle metrics
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observer_cycles_total",
			Help: "Total number of evaluation cycles",
		},
		[]string{"status"}, // status: ok, error
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "observer_cycle_duration_seconds",
			Help:    "Wall time of one fetch/evaluate/dispatch cycle",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	SnapshotsEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observer_snapshots_evaluated_total",
			Help: "Snapshots evaluated, by state family",
		},
		[]string{"family", "status"}, // family: price_feed, publisher
	)

	// Check metrics
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observer_checks_total",
			Help: "Check executions by type and outcome",
		},
		[]string{"check", "result"}, // result: pass, fail
	)

	CheckFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observer_check_failures_total",
			Help: "Failed checks by type and symbol",
		},
		[]string{"check", "symbol"},
	)

	// Alert metrics
	OpenAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "observer_open_alerts",
			Help: "Alert records currently open",
		},
	)

	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observer_alerts_raised_total",
			Help: "Alert notifications raised, by check type",
		},
		[]string{"check"},
	)

	AlertsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observer_alerts_resolved_total",
			Help: "Alerts resolved, by check type",
		},
		[]string{"check"},
	)

	// Notification metrics
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observer_notification_sends_total",
			Help: "Notification send attempts by channel and outcome",
		},
		[]string{"channel", "status"}, // status: ok, error
	)

	// Persistence metrics
	StateSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observer_state_saves_total",
			Help: "Alert-state persistence attempts",
		},
		[]string{"status"},
	)
)
