// Package metrics exposes scan metrics to Prometheus and serves /metrics
// and /healthz.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ma-screener/internal/model"
)

// Metrics holds the screener's Prometheus collectors. It implements
// scanner.Observer.
type Metrics struct {
	ScansTotal     *prometheus.CounterVec   // labels: strategy, mode
	SymbolsTotal   *prometheus.CounterVec   // labels: strategy, outcome
	SignalsTotal   *prometheus.CounterVec   // labels: strategy
	FetchDur       *prometheus.HistogramVec // labels: strategy
	ScanDur        *prometheus.HistogramVec // labels: strategy, mode
	LastScanTime   *prometheus.GaugeVec     // labels: strategy
	LastScanSignal *prometheus.GaugeVec     // labels: strategy

	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	MarketState prometheus.Gauge // 0=closed, 1=open
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_scans_total",
			Help: "Completed universe scans",
		}, []string{"strategy", "mode"}),
		SymbolsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_symbols_total",
			Help: "Symbols processed, by outcome",
		}, []string{"strategy", "outcome"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_signals_total",
			Help: "Signal records produced",
		}, []string{"strategy"}),
		FetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "screener_fetch_duration_seconds",
			Help:    "History fetch latency per symbol",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"strategy"}),
		ScanDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "screener_scan_duration_seconds",
			Help:    "Wall time of a universe scan",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"strategy", "mode"}),
		LastScanTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "screener_last_scan_timestamp_seconds",
			Help: "Unix time the last scan finished",
		}, []string{"strategy"}),
		LastScanSignal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "screener_last_scan_signals",
			Help: "Signal records in the last scan",
		}, []string{"strategy"}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screener_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screener_market_state",
			Help: "NSE session state (0=closed, 1=open)",
		}),
	}

	reg.MustRegister(
		m.ScansTotal,
		m.SymbolsTotal,
		m.SignalsTotal,
		m.FetchDur,
		m.ScanDur,
		m.LastScanTime,
		m.LastScanSignal,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.MarketState,
	)
	return m
}

// ObserveSymbol records one symbol's outcome and fetch latency.
func (m *Metrics) ObserveSymbol(strategy string, outcome model.Outcome, fetch time.Duration) {
	m.SymbolsTotal.WithLabelValues(strategy, string(outcome)).Inc()
	if fetch > 0 {
		m.FetchDur.WithLabelValues(strategy).Observe(fetch.Seconds())
	}
}

// ObserveScan records a finished scan.
func (m *Metrics) ObserveScan(res *model.ScanResult, elapsed time.Duration) {
	m.ScansTotal.WithLabelValues(res.Strategy, res.Mode).Inc()
	m.ScanDur.WithLabelValues(res.Strategy, res.Mode).Observe(elapsed.Seconds())
	m.SignalsTotal.WithLabelValues(res.Strategy).Add(float64(len(res.Records)))
	m.LastScanSignal.WithLabelValues(res.Strategy).Set(float64(len(res.Records)))
	m.LastScanTime.WithLabelValues(res.Strategy).Set(float64(res.FinishedAt.Unix()))
}

// ObserveBreaker records a circuit breaker transition to state.
func (m *Metrics) ObserveBreaker(state int) {
	m.RedisCircuitBreakerState.Set(float64(state))
	if state == 1 {
		m.RedisCircuitBreakerTrips.Inc()
	}
}

// SetMarketOpen records the NSE session state.
func (m *Metrics) SetMarketOpen(open bool) {
	if open {
		m.MarketState.Set(1)
		return
	}
	m.MarketState.Set(0)
}
