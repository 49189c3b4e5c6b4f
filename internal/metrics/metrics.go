// Package metrics holds the Prometheus collectors for the trader. They are
// registered in init() and served at /metrics by cmd/trader.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

var (
	MonitorTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gaptrader_monitor_ticks_total",
			Help: "Monitor loop poll ticks",
		},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gaptrader_tick_duration_seconds",
			Help:    "Wall time of one watchlist scan",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	BuyOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaptrader_buy_outcomes_total",
			Help: "ExecuteBuy results by status and skip reason",
		},
		[]string{"status", "reason"},
	)

	// result: placed|rejected|error
	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaptrader_orders_total",
			Help: "Order placement attempts",
		},
		[]string{"side", "product", "result"},
	)

	PositionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaptrader_position_transitions_total",
			Help: "Position status changes by target status",
		},
		[]string{"status"},
	)

	ConditionalTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaptrader_conditional_transitions_total",
			Help: "Conditional order status changes by target status",
		},
		[]string{"status"},
	)

	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gaptrader_open_positions",
			Help: "Positions in BOUGHT or ALERTED",
		},
	)

	TotalCapital = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gaptrader_total_capital",
			Help: "Last refreshed account balance",
		},
	)

	AvailableCapital = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gaptrader_available_capital",
			Help: "Deployment capital minus allocated capital",
		},
	)

	NotifyFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gaptrader_notify_failures_total",
			Help: "Notifications that could not be delivered",
		},
		[]string{"channel"},
	)
)

func init() {
	prometheus.MustRegister(MonitorTicks, TickDuration)
	prometheus.MustRegister(BuyOutcomes, Orders)
	prometheus.MustRegister(PositionTransitions, ConditionalTransitions)
	prometheus.MustRegister(OpenPositions, TotalCapital, AvailableCapital)
	prometheus.MustRegister(NotifyFailures)
}

// SetGauge writes a decimal into a gauge.
func SetGauge(g prometheus.Gauge, v decimal.Decimal) {
	g.Set(v.InexactFloat64())
}

func Handler() http.Handler {
	return promhttp.Handler()
}
