// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abdm_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "abdm_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// GatewayRequests counts outbound gateway calls by operation and final outcome
	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abdm_gateway_requests_total",
			Help: "Outbound gateway calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// GatewayRetries counts retried outbound attempts
	GatewayRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abdm_gateway_retries_total",
			Help: "Retried outbound gateway attempts by operation",
		},
		[]string{"operation"},
	)

	// GatewayDuration observes outbound call duration including retries
	GatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "abdm_gateway_request_duration_seconds",
			Help:    "Outbound gateway call duration in seconds, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// PipelineStages counts pipeline stage attempts
	PipelineStages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abdm_pipeline_stage_total",
			Help: "Health information pipeline stage attempts by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	// PipelineStageDuration observes stage attempt durations
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "abdm_pipeline_stage_duration_seconds",
			Help:    "Health information pipeline stage duration in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"stage"},
	)

	// Callbacks counts inbound callbacks by kind and accept/process result
	Callbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abdm_callbacks_total",
			Help: "Inbound network callbacks by kind and result",
		},
		[]string{"kind", "result"},
	)

	// ConsentTransitions counts consent request status transitions
	ConsentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abdm_consent_transitions_total",
			Help: "Consent request status transitions",
		},
		[]string{"from", "to"},
	)

	// SweepExpirations counts rows expired by the sweeper
	SweepExpirations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "abdm_sweep_expirations_total",
			Help: "Consent requests and artifacts expired by the sweeper",
		},
		[]string{"kind"},
	)

	// FetchStalled is the number of PROCESSING fetch requests seen as stalled on the last sweep
	FetchStalled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "abdm_fetch_stalled",
		Help: "PROCESSING fetch requests without progress within the stall timeout",
	})
)

// Middleware records request count and duration per route template
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
