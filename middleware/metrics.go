package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	remoteCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_calls_total",
			Help: "Total number of record service calls",
		},
		[]string{"operation", "outcome"},
	)

	remoteCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remote_call_duration_seconds",
			Help:    "Record service call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	remoteBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "remote_circuit_breaker_state",
			Help: "Record service circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
	)

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "console_sessions_active",
			Help: "Number of open console sessions",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(remoteCallsTotal)
	prometheus.MustRegister(remoteCallDuration)
	prometheus.MustRegister(remoteBreakerState)
	prometheus.MustRegister(sessionsActive)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// RecordRemoteCall counts one record service call by outcome ("success" or "error").
func RecordRemoteCall(operation string, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	remoteCallsTotal.WithLabelValues(operation, outcome).Inc()
	remoteCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func RecordBreakerState(state int) {
	remoteBreakerState.Set(float64(state))
}

func SessionOpened() {
	sessionsActive.Inc()
}

func SessionClosed() {
	sessionsActive.Dec()
}
