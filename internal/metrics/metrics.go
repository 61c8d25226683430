// Package metrics provides Prometheus instrumentation for the ledger engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersTotal counts submitted orders, partitioned by side and outcome
	// (accepted or rejected).
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "microtrade_orders_total",
		Help: "Total number of orders submitted",
	}, []string{"side", "outcome"})

	// OrderRejections counts rejected orders by reason.
	OrderRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "microtrade_order_rejections_total",
		Help: "Orders rejected by the validation gate",
	}, []string{"reason"})

	// SubmitLatency tracks submit latency including the price fetch.
	SubmitLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "microtrade_submit_latency_seconds",
		Help:    "Order submit latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// LedgerSize tracks the number of records in the trade log.
	LedgerSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "microtrade_ledger_records",
		Help: "Number of records in the trade log",
	})

	// TradedVolume tracks cumulative filled quantity per asset class.
	TradedVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "microtrade_traded_volume_total",
		Help: "Cumulative filled quantity",
	}, []string{"class", "side"})

	// OracleFailures counts price lookups that produced no price.
	OracleFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "microtrade_oracle_failures_total",
		Help: "Price lookups that returned no usable price",
	})

	// SnapshotLatency tracks portfolio snapshot latency including lookups.
	SnapshotLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "microtrade_snapshot_latency_seconds",
		Help:    "Portfolio snapshot latency in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "microtrade_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "microtrade_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "microtrade_http_request_duration_seconds",
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

		// Route pattern keeps /quotes/{symbol} to one series.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if pattern := rc.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
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

// Hijack lets websocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
