// Package metrics provides Prometheus metrics for the dashboard engine:
// feed health, reconciliation throughput and portfolio-level gauges,
// exposed via the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the dashboard engine.
type Metrics struct {
	// Feed metrics
	TicksReceived  prometheus.Counter // Total ticks decoded from the push channel
	TickBatches    prometheus.Counter // Total live_ticks frames processed
	FeedReconnects prometheus.Counter // Total push-channel reconnections

	// Engine metrics
	ReconcilePasses   prometheus.Counter   // Total tick-driven reconciliation passes
	FullRefreshes     prometheus.Counter   // Total data_update full refresh cycles
	RESTErrors        prometheus.Counter   // Total failed REST collaborator calls
	RiskFetchFailures prometheus.Counter   // Total per-symbol risk score fetch failures
	AlertsTriggered   prometheus.Counter   // Total price alerts that fired
	ReconcileDuration prometheus.Histogram // Duration of a reconciliation pass

	// Portfolio gauges
	ActivePositions    prometheus.Gauge // Number of open positions
	UnrealizedPnL      prometheus.Gauge // Total unrealized P&L (pre-multiplier)
	PortfolioRiskScore prometheus.Gauge // Value-weighted portfolio risk score; -1 while unknown
	KnownInstruments   prometheus.Gauge // Instruments with a known live price
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry, which keeps
// tests isolated from the global registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		TicksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticks_received_total",
			Help: "Total ticks decoded from the push channel",
		}),
		TickBatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "tick_batches_total",
			Help: "Total live_ticks frames processed",
		}),
		FeedReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "feed_reconnects_total",
			Help: "Total push-channel reconnections",
		}),
		ReconcilePasses: factory.NewCounter(prometheus.CounterOpts{
			Name: "reconcile_passes_total",
			Help: "Total tick-driven reconciliation passes",
		}),
		FullRefreshes: factory.NewCounter(prometheus.CounterOpts{
			Name: "full_refreshes_total",
			Help: "Total data_update full refresh cycles",
		}),
		RESTErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "rest_errors_total",
			Help: "Total failed REST collaborator calls",
		}),
		RiskFetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_fetch_failures_total",
			Help: "Total per-symbol risk score fetch failures",
		}),
		AlertsTriggered: factory.NewCounter(prometheus.CounterOpts{
			Name: "alerts_triggered_total",
			Help: "Total price alerts that fired",
		}),
		ReconcileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconcile_duration_seconds",
			Help:    "Duration of a reconciliation pass in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		ActivePositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_positions",
			Help: "Number of open positions",
		}),
		UnrealizedPnL: factory.NewGauge(prometheus.GaugeOpts{
			Name: "unrealized_pnl",
			Help: "Total unrealized P&L across open positions, pre-multiplier",
		}),
		PortfolioRiskScore: factory.NewGauge(prometheus.GaugeOpts{
			Name: "portfolio_risk_score",
			Help: "Value-weighted portfolio risk score; -1 while unknown",
		}),
		KnownInstruments: factory.NewGauge(prometheus.GaugeOpts{
			Name: "known_instruments",
			Help: "Instruments with a known live price",
		}),
	}
}
