// Package metrics provides Prometheus instrumentation for backtests, data loads and the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rebalance outcomes
const (
	OutcomeRebalanced      = "rebalanced"
	OutcomeAllocatorFailed = "allocator_failed"
	OutcomeSkipped         = "skipped"
)

var (
	// RebalancesTotal counts rebalance attempts by calculator and outcome.
	RebalancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_backtest_rebalances_total",
		Help: "Rebalance attempts by calculator and outcome",
	}, []string{"calculator", "outcome"})

	// FeesTotal accumulates transaction fees charged per calculator.
	FeesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_backtest_fees_total",
		Help: "Transaction fees charged during backtests",
	}, []string{"calculator"})

	// RunSeconds tracks wall time of a full backtest run.
	RunSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "portfolio_backtest_run_seconds",
		Help:    "Backtest run duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	})

	// DataLoadsTotal counts market data loads by source and result.
	DataLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_data_loads_total",
		Help: "Market data loads by source and result",
	}, []string{"source", "result"})

	// CacheLookupsTotal counts history cache hits and misses.
	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_data_cache_lookups_total",
		Help: "Market data cache lookups",
	}, []string{"result"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portfolio_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
