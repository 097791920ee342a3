// Package metrics provides Prometheus instrumentation for the backtester.
package metrics

import (
	"bufio"
	"fmt"
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
	// BacktestsTotal counts finished runs by mode and outcome.
	BacktestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graham_backtests_total",
		Help: "Total number of backtest runs",
	}, []string{"mode", "status"})

	// BacktestDuration tracks wall-clock time of a single engine run.
	BacktestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "graham_backtest_duration_seconds",
		Help:    "Backtest engine run duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"mode"})

	// DaysSimulated counts calendar days processed by the engine.
	DaysSimulated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graham_days_simulated_total",
		Help: "Calendar days simulated",
	}, []string{"mode"})

	// TradesTotal counts simulated trades by action.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graham_trades_total",
		Help: "Simulated trades by action",
	}, []string{"action"})

	// ValueCacheLookups counts intrinsic value cache lookups by result.
	ValueCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graham_value_cache_lookups_total",
		Help: "Intrinsic value cache lookups",
	}, []string{"result"})

	// RateRefreshTotal counts rate series refreshes by outcome.
	RateRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graham_rate_refresh_total",
		Help: "Rate series refresh attempts",
	}, []string{"status"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "graham_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "graham_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "graham_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
	}, []string{"method", "path"})
)

// RunStats is what one engine run reports.
type RunStats struct {
	Mode        string
	Failed      bool
	Duration    time.Duration
	Days        int
	Trades      map[string]int
	CacheHits   int
	CacheMisses int
}

// RecordRun updates the backtest collectors for one run.
func RecordRun(s RunStats) {
	status := "ok"
	if s.Failed {
		status = "error"
	}
	BacktestsTotal.WithLabelValues(s.Mode, status).Inc()
	BacktestDuration.WithLabelValues(s.Mode).Observe(s.Duration.Seconds())
	DaysSimulated.WithLabelValues(s.Mode).Add(float64(s.Days))
	for action, n := range s.Trades {
		TradesTotal.WithLabelValues(action).Add(float64(n))
	}
	ValueCacheLookups.WithLabelValues("hit").Add(float64(s.CacheHits))
	ValueCacheLookups.WithLabelValues("miss").Add(float64(s.CacheMisses))
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern keeps run ids out of the label set
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
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

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Flush supports streaming responses.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack supports websocket upgrades.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}
