// Package prometrics exposes the engine's Prometheus counters and
// histograms, grounded on the teacher's own prometrics package
// (promauto + promhttp.Handler mounted at /metrics), relabeled for
// invocations, image builds, and gateway dispatches instead of function
// log lines.
package prometrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	invocationsTotal *prometheus.CounterVec
	invocationDur    *prometheus.HistogramVec
	buildsTotal      *prometheus.CounterVec
	gatewayDispatch  *prometheus.CounterVec
)

func init() {
	invocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clowdy_invocations_total",
			Help: "Total number of function invocations, by terminal status.",
		},
		[]string{"function_id", "status", "source"},
	)

	invocationDur = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clowdy_invocation_duration_ms",
			Help:    "Function invocation duration in milliseconds.",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 5000, 15000, 30000},
		},
		[]string{"function_id"},
	)

	buildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clowdy_image_builds_total",
			Help: "Total number of project runtime image builds, by outcome.",
		},
		[]string{"project_id", "outcome"},
	)

	gatewayDispatch = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clowdy_gateway_dispatch_total",
			Help: "Total number of gateway requests, by outcome.",
		},
		[]string{"project_id", "outcome"},
	)
}

// RecordInvocation increments the invocation counters for a completed run.
func RecordInvocation(functionID, status, source string, durationMS int64) {
	if functionID == "" {
		functionID = "unknown"
	}
	invocationsTotal.WithLabelValues(functionID, status, source).Inc()
	invocationDur.WithLabelValues(functionID).Observe(float64(durationMS))
}

// RecordBuild increments the image build counter for a project.
func RecordBuild(projectID, outcome string) {
	if projectID == "" {
		projectID = "unknown"
	}
	buildsTotal.WithLabelValues(projectID, outcome).Inc()
}

// RecordGatewayDispatch increments the gateway dispatch counter.
func RecordGatewayDispatch(projectID, outcome string) {
	if projectID == "" {
		projectID = "unknown"
	}
	gatewayDispatch.WithLabelValues(projectID, outcome).Inc()
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
