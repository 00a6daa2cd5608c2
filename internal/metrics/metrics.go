// Package metrics exposes Prometheus collectors for the parse, propagate and
// serve paths.
package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	recordsParsedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orbstate_records_parsed_total",
			Help: "Total number of element sets parsed successfully.",
		},
	)

	recordsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbstate_records_rejected_total",
			Help: "Total number of element sets dropped, by pipeline stage.",
		},
		[]string{"stage"},
	)

	propagationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbstate_propagations_total",
			Help: "Total number of state vectors computed, by status.",
		},
		[]string{"status"},
	)

	propagationBatchSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orbstate_propagation_batch_duration_seconds",
			Help:    "Wall time of one propagation batch.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
	)

	datasetRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbstate_dataset_rows",
			Help: "Number of rows in the most recently assembled dataset.",
		},
	)

	datasetAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orbstate_dataset_age_seconds",
			Help: "Seconds since the served dataset was assembled.",
		},
	)

	fetchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbstate_fetch_requests_total",
			Help: "Total number of catalog fetch requests, by query kind and outcome.",
		},
		[]string{"query", "outcome"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbstate_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orbstate_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(
		recordsParsedTotal,
		recordsRejectedTotal,
		propagationsTotal,
		propagationBatchSeconds,
		datasetRows,
		datasetAgeSeconds,
		fetchRequestsTotal,
		httpRequestsTotal,
		httpDurationSeconds,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordParsed(n int) {
	recordsParsedTotal.Add(float64(n))
}

func RecordRejected(stage string) {
	recordsRejectedTotal.WithLabelValues(stage).Inc()
}

func RecordPropagation(status string) {
	propagationsTotal.WithLabelValues(status).Inc()
}

// ObservePropagationBatch records the duration of one batch run.
func ObservePropagationBatch(d time.Duration) {
	propagationBatchSeconds.Observe(d.Seconds())
}

func SetDatasetRows(n int) {
	datasetRows.Set(float64(n))
}

func SetDatasetAge(seconds float64) {
	datasetAgeSeconds.Set(seconds)
}

// RecordFetch counts one catalog request; outcome is "ok", "empty", "error"
// or "cache".
func RecordFetch(query, outcome string) {
	fetchRequestsTotal.WithLabelValues(query, outcome).Inc()
}

// WriteTextfile dumps the default registry in the node-exporter textfile
// collector format. The file is written atomically.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

var exactRoutes = map[string]bool{
	"/":                       true,
	"/healthz":                true,
	"/readyz":                 true,
	"/metrics":                true,
	"/api/v1/parse":           true,
	"/api/v1/assemble":        true,
	"/api/v1/datasets/latest": true,
}

var satelliteRoute = regexp.MustCompile(`^/api/v1/satellites/\d+$`)

// normalizeRoute bounds label cardinality: parameterized routes collapse to
// their pattern and unknown paths to "other".
func normalizeRoute(path string) string {
	if exactRoutes[path] {
		return path
	}
	if satelliteRoute.MatchString(path) {
		return "/api/v1/satellites/{norad_id}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		path := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}
