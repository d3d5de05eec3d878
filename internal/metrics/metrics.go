// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fop"

var (
	// Registry holds the service's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	domainEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "permit",
			Name:      "events_total",
			Help:      "Domain events committed, by event type.",
		},
		[]string{"type"},
	)

	conflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "permit",
			Name:      "concurrent_modifications_total",
			Help:      "Commits rejected by the optimistic version check.",
		},
	)

	quotes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fees",
			Name:      "quotes_total",
			Help:      "Fee calculations by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	outboxDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "dispatched_total",
			Help:      "Outbox events handed to notification dispatch.",
		},
		[]string{"outcome"},
	)

	expiredDocuments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "expired_total",
			Help:      "Documents marked expired by the expiry sweep.",
		},
	)

	expiryWarnings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "expiry_warnings_total",
			Help:      "Expiring-soon warnings raised by the expiry sweep.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		domainEvents,
		conflicts,
		quotes,
		outboxDispatched,
		expiredDocuments,
		expiryWarnings,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request metrics labelled by the matched route, so path
// parameters do not explode label cardinality.
func Middleware(metricsPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == metricsPath {
			c.Next()
			return
		}

		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func RecordEvent(eventType string) {
	domainEvents.WithLabelValues(eventType).Inc()
}

func RecordConflict() {
	conflicts.Inc()
}

// RecordQuote counts a fee calculation; kind is permit, tariff or interest.
func RecordQuote(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	quotes.WithLabelValues(kind, outcome).Inc()
}

func RecordDispatch(success bool) {
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	outboxDispatched.WithLabelValues(outcome).Inc()
}

func RecordExpiredDocuments(n int) {
	expiredDocuments.Add(float64(n))
}

func RecordExpiryWarnings(n int) {
	expiryWarnings.Add(float64(n))
}
