// Package metrics provides Prometheus instrumentation for the market engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts executed trades, partitioned by kind and market type.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "horizon_trades_total",
		Help: "Total number of trades executed",
	}, []string{"kind", "market_type"})

	// TradeLatency tracks trade execution latency (validation + bisection +
	// snapshot save).
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "horizon_trade_latency_seconds",
		Help:    "Trade execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// TotalVolume mirrors the market's cumulative dollar flow.
	TotalVolume = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "horizon_total_volume_dollars",
		Help: "Cumulative absolute dollar flow across all trades",
	})

	// LiquidityB mirrors the current dynamic liquidity parameter.
	LiquidityB = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "horizon_liquidity_b",
		Help: "Current LMSR liquidity parameter b",
	})

	// SnapshotSaveFailures counts non-fatal snapshot persistence errors.
	SnapshotSaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "horizon_snapshot_save_failures_total",
		Help: "Snapshot saves that failed (state continues from memory)",
	})

	// TradeRejections counts trades rejected during validation.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "horizon_trade_rejections_total",
		Help: "Trades rejected before any state mutation",
	}, []string{"reason"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "horizon_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "horizon_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "horizon_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
