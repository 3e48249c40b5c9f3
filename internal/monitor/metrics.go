package monitor

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	cycles          *prometheus.CounterVec
	cycleDuration   *prometheus.HistogramVec
	orders          *prometheus.CounterVec
	stopTriggers    prometheus.Counter
	stopMoves       prometheus.Counter
	takeProfits     prometheus.Counter
	corrections     *prometheus.CounterVec
	closedPositions *prometheus.CounterVec
	openPositions   prometheus.Gauge
	walletBalance   prometheus.Gauge
	nav             prometheus.Gauge
	apiRequests     *prometheus.CounterVec
	apiLatency      prometheus.Histogram
}

// NewMetrics registers every collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_cycles_total",
			Help: "Cycles run, by kind and result",
		}, []string{"kind", "result"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bot_cycle_duration_seconds",
			Help:    "Wall time of a cycle",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"kind"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_orders_total",
			Help: "Orders submitted, by side and outcome",
		}, []string{"side", "outcome"}),
		stopTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_stop_triggers_total",
			Help: "Trailing stops triggered",
		}),
		stopMoves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_stop_moves_total",
			Help: "Trailing stop reference advances",
		}),
		takeProfits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bot_take_profits_total",
			Help: "Take-profit levels executed",
		}),
		corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_reconciliation_corrections_total",
			Help: "Ledger corrections applied by reconciliation",
		}, []string{"kind"}),
		closedPositions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_closed_positions_total",
			Help: "Positions closed, by reason",
		}, []string{"reason"}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_open_positions",
			Help: "Open positions in the ledger",
		}),
		walletBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_wallet_balance_usdt",
			Help: "Futures wallet balance",
		}),
		nav: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bot_nav_usdt",
			Help: "Futures margin balance including unrealized pnl",
		}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bot_api_requests_total",
			Help: "Status API requests, by method and status class",
		}, []string{"method", "status"}),
		apiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bot_api_request_duration_seconds",
			Help:    "Status API latency",
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(
		m.cycles, m.cycleDuration, m.orders, m.stopTriggers, m.stopMoves, m.takeProfits,
		m.corrections, m.closedPositions, m.openPositions, m.walletBalance, m.nav,
		m.apiRequests, m.apiLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the Prometheus text exposition.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCycle(kind string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.cycles.WithLabelValues(kind, result).Inc()
	m.cycleDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) ObserveOrder(side, outcome string) {
	m.orders.WithLabelValues(side, outcome).Inc()
}

func (m *Metrics) ObserveCorrection(kind string) {
	m.corrections.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveClose(reason string) {
	m.closedPositions.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncStopTriggers() { m.stopTriggers.Inc() }
func (m *Metrics) IncStopMoves()    { m.stopMoves.Inc() }
func (m *Metrics) IncTakeProfits()  { m.takeProfits.Inc() }

// SetAccount updates the account gauges.
func (m *Metrics) SetAccount(open int, wallet, nav float64) {
	m.openPositions.Set(float64(open))
	m.walletBalance.Set(wallet)
	m.nav.Set(nav)
}

// ObserveAPI records one status API request.
func (m *Metrics) ObserveAPI(method string, status int, d time.Duration) {
	m.apiRequests.WithLabelValues(method, fmt.Sprintf("%dxx", status/100)).Inc()
	m.apiLatency.Observe(d.Seconds())
}
