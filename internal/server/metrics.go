package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler partitions HTTP metrics by logical endpoint name rather than
// raw URL path, so chat IDs never become label values.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// Tests pass a fresh prometheus.Registry so the default one stays clean.
type serverMetrics struct {
	// chatRequestsTotal counts completed question requests by endpoint
	// ("ask" or "stream") and outcome.
	chatRequestsTotal *prometheus.CounterVec

	// chatDurationSeconds records the wall-clock duration of question
	// requests, up to stream completion for SSE.
	chatDurationSeconds *prometheus.HistogramVec

	// chatActiveStreams is the number of SSE answer streams currently open.
	chatActiveStreams prometheus.Gauge

	// rateLimitedTotal counts requests rejected with 429.
	rateLimitedTotal prometheus.Counter

	// httpRequestsTotal counts all HTTP requests handled by the mux.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medchat",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of question requests completed, partitioned by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),

		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medchat",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of question requests from receipt to answer completion.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"endpoint", "outcome"}),

		chatActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "medchat",
			Subsystem: "chat",
			Name:      "active_streams",
			Help:      "Number of answer SSE streams currently open.",
		}),

		rateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "medchat",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the per-IP rate limiter.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medchat",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medchat",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// observeChat records one finished question request.
func (m *serverMetrics) observeChat(endpoint, outcome string, elapsed time.Duration) {
	m.chatRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	m.chatDurationSeconds.WithLabelValues(endpoint, outcome).Observe(elapsed.Seconds())
}

// instrument records request count and latency for next under name.
func (m *serverMetrics) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)
		m.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
	})
}
