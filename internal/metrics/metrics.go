// Package metrics provides Prometheus instrumentation for the mint engine.
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
	// ActivationsTotal counts server activations, partitioned by tier.
	ActivationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mint_activations_total",
		Help: "Total number of server activations",
	}, []string{"tier"})

	// ClaimsTotal counts ROI claim settlements, partitioned by tier.
	ClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mint_claims_total",
		Help: "Total number of ROI claims settled",
	}, []string{"tier"})

	// TopUpsTotal counts cap-reset top-ups, partitioned by tier.
	TopUpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mint_topups_total",
		Help: "Total number of position top-ups",
	}, []string{"tier"})

	// ClaimAmountUsd tracks settled claim amounts in whole USD.
	ClaimAmountUsd = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mint_claim_amount_usd",
		Help:    "Settled claim amounts in USD",
		Buckets: []float64{0.01, 0.1, 1, 10, 100, 1000, 10000},
	})

	// ActivePositions tracks the number of open positions.
	ActivePositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mint_active_positions",
		Help: "Number of currently open positions",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mint_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// BusinessRejections counts business-rule rejections by reason.
	BusinessRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mint_business_rejections_total",
		Help: "Requests rejected by business rules",
	}, []string{"reason"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mint_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mint_http_request_duration_seconds",
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

		// Use the route pattern for path label to avoid high cardinality.
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
