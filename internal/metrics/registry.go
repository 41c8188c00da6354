// Package metrics exposes the bot's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Registry holds every Prometheus metric the bot records.
type Registry struct {
	reg *prometheus.Registry

	// Analysis cycle metrics
	CycleDuration prometheus.Histogram
	CyclesTotal   *prometheus.CounterVec
	FetchFailures *prometheus.CounterVec
	PairScore     *prometheus.GaugeVec

	// Learning metrics
	WeightUpdates       *prometheus.CounterVec
	InvariantViolations prometheus.Counter

	// Trading metrics
	OrdersSubmitted *prometheus.CounterVec
	OrderFailures   prometheus.Counter
	TradeDrops      *prometheus.CounterVec
	AllocationRatio *prometheus.GaugeVec
}

// NewRegistry creates and registers all bot metrics on a fresh registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bntradebot_cycle_duration_seconds",
				Help:    "Duration of one full analysis cycle in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),

		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bntradebot_cycles_total",
				Help: "Total analysis cycles by result",
			},
			[]string{"result"},
		),

		FetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bntradebot_fetch_failures_total",
				Help: "Total candle fetch failures by pair and interval",
			},
			[]string{"pair", "interval"},
		),

		PairScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bntradebot_pair_score",
				Help: "Latest scoring tree output per pair (0.0 to 1.0)",
			},
			[]string{"pair"},
		),

		WeightUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bntradebot_weight_updates_total",
				Help: "Total online weight updates by pair",
			},
			[]string{"pair"},
		),

		InvariantViolations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bntradebot_weight_invariant_violations_total",
				Help: "Total weight-sum invariant violations detected after updates",
			},
		),

		OrdersSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bntradebot_orders_submitted_total",
				Help: "Total orders submitted by side and status",
			},
			[]string{"side", "status"},
		),

		OrderFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bntradebot_order_failures_total",
				Help: "Total order submissions rejected by the exchange",
			},
		),

		TradeDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bntradebot_trade_drops_total",
				Help: "Total candidate trades dropped by the negotiation engine, by drop code",
			},
			[]string{"code"},
		),

		AllocationRatio: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bntradebot_allocation_ratio",
				Help: "Latest target portfolio ratio per asset (0.0 to 1.0)",
			},
			[]string{"asset"},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.CycleDuration,
		r.CyclesTotal,
		r.FetchFailures,
		r.PairScore,
		r.WeightUpdates,
		r.InvariantViolations,
		r.OrdersSubmitted,
		r.OrderFailures,
		r.TradeDrops,
		r.AllocationRatio,
	)
	return r
}

// Handler serves the registry in Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gather collects the current metric families, mainly for tests and the
// status endpoint.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	return r.reg.Gather()
}

// CycleTimer times one analysis cycle.
type CycleTimer struct {
	registry *Registry
	start    time.Time
}

// StartCycle begins timing a cycle.
func (r *Registry) StartCycle() *CycleTimer {
	return &CycleTimer{registry: r, start: time.Now()}
}

// Stop records the cycle duration and its result ("ok" or "error").
func (t *CycleTimer) Stop(result string) time.Duration {
	elapsed := time.Since(t.start)
	t.registry.CycleDuration.Observe(elapsed.Seconds())
	t.registry.CyclesTotal.WithLabelValues(result).Inc()
	return elapsed
}
