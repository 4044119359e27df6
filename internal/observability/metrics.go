package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PipelineOps counts write pipeline executions by operation and result
	// (committed, rejected, failed).
	PipelineOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantage_writepath_ops_total",
			Help: "Write pipeline executions by operation and result",
		},
		[]string{"op", "result"},
	)

	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vantage_writepath_tx_duration_seconds",
			Help:    "Time spent inside the system-of-record transaction",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// EffectFailures counts post-commit effects that gave up after retries.
	EffectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantage_effect_failures_total",
			Help: "Post-commit effects (cache sync, notify) that failed after retries",
		},
		[]string{"op", "effect"},
	)

	EffectRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantage_effect_retries_total",
			Help: "Post-commit effect attempts beyond the first",
		},
		[]string{"op", "effect"},
	)

	CascadeSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vantage_cascade_descendants",
			Help:    "Descendants rewritten per rename or reparent",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantage_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vantage_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantage_http_errors_total",
			Help: "Failed HTTP requests by route and error name",
		},
		[]string{"route", "name"},
	)

	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantage_notifications_total",
			Help: "Change notifications published by entity, event and result",
		},
		[]string{"entity", "event", "result"},
	)
)

var registerOnce sync.Once

// Register adds the collectors to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			PipelineOps,
			PipelineDuration,
			EffectFailures,
			EffectRetries,
			CascadeSize,
			Notifications,
			HTTPRequests,
			HTTPDuration,
			HTTPErrors,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
