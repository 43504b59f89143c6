// Package metrics exposes the service's prometheus collectors.
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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	solverRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_solver_runs_total",
			Help: "Total number of solver runs",
		},
		[]string{"mode", "outcome"}, // outcome: ok, interrupted, error
	)

	solverDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "route_solver_duration_seconds",
			Help:    "Solver wall time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
		[]string{"mode"},
	)

	solverMovesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_solver_moves_total",
			Help: "Annealing moves evaluated, by decision",
		},
		[]string{"decision"}, // accepted, rejected
	)

	waypointsPerPlan = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "route_plan_waypoints",
			Help:    "Number of resolved waypoints per plan",
			Buckets: []float64{2, 3, 5, 8, 10, 15, 20, 30, 50, 80, 120},
		},
	)

	geocodeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "route_geocode_failures_total",
			Help: "Addresses dropped because they could not be geocoded",
		},
	)
)

// Outcome labels for RecordSolverRun
const (
	OutcomeOK          = "ok"
	OutcomeInterrupted = "interrupted"
	OutcomeError       = "error"
)

// RecordSolverRun records one solver invocation
func RecordSolverRun(mode, outcome string, elapsed time.Duration) {
	solverRunsTotal.WithLabelValues(mode, outcome).Inc()
	solverDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// RecordMoves adds annealing move decisions
func RecordMoves(accepted, rejected int) {
	solverMovesTotal.WithLabelValues("accepted").Add(float64(accepted))
	solverMovesTotal.WithLabelValues("rejected").Add(float64(rejected))
}

// RecordPlanSize observes the number of waypoints a plan was solved over
func RecordPlanSize(n int) {
	waypointsPerPlan.Observe(float64(n))
}

// RecordGeocodeFailures counts addresses dropped from a plan
func RecordGeocodeFailures(n int) {
	geocodeFailuresTotal.Add(float64(n))
}

// Handler returns the prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request count, latency and in-flight requests.
// The path label is the registered route pattern to bound cardinality.
func Middleware(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		httpRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}
