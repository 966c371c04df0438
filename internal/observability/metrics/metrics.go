package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"shop-ingest/internal/core/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK        = "ok"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
	OutcomeRetry     = "retry"
)

const (
	SourceBackfill = "backfill"
	SourceWebhook  = "webhook"
)

const (
	ErrorTypeCanceled = "canceled"
	ErrorTypeRemote   = "remote"
	ErrorTypeDB       = "db"
	ErrorTypeUnknown  = "unknown"
)

// Metrics holds the ingestion instruments. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	remoteRequests  *prometheus.CounterVec
	remoteDuration  *prometheus.HistogramVec
	recordsUpserted *prometheus.CounterVec
	jobsFinished    *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	webhooks        *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers the instruments on a fresh registry that also carries the Go
// and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newMetrics(registry)
}

func newMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		remoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_remote_requests_total",
			Help: "Admin API requests by resource and outcome.",
		}, []string{"resource", "outcome"}),
		remoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingest_remote_request_duration_seconds",
			Help:    "Admin API request latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"resource"}),
		recordsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_records_upserted_total",
			Help: "Records written by resource and source path.",
		}, []string{"resource", "source"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_backfill_jobs_total",
			Help: "Backfill jobs reaching a terminal status.",
		}, []string{"status", "error_type"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingest_backfill_job_duration_seconds",
			Help:    "Backfill job wall time from running to terminal status.",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"status"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_webhooks_total",
			Help: "Webhook deliveries by resource and outcome.",
		}, []string{"resource", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingest_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		m.remoteRequests,
		m.remoteDuration,
		m.recordsUpserted,
		m.jobsFinished,
		m.jobDuration,
		m.webhooks,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRemoteRequest records one Admin API attempt.
func (m *Metrics) ObserveRemoteRequest(resource, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.remoteRequests.WithLabelValues(resource, outcome).Inc()
	m.remoteDuration.WithLabelValues(resource).Observe(duration.Seconds())
}

// AddRecordsUpserted counts written records.
func (m *Metrics) AddRecordsUpserted(resource, source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsUpserted.WithLabelValues(resource, source).Add(float64(n))
}

// ObserveJobFinished records a job reaching status after running for duration.
func (m *Metrics) ObserveJobFinished(status string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	errorType := ""
	if err != nil {
		errorType = ClassifyError(err)
	}
	m.jobsFinished.WithLabelValues(status, errorType).Inc()
	m.jobDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// IncWebhook counts a webhook delivery outcome.
func (m *Metrics) IncWebhook(resource, outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(resource, outcome).Inc()
}

// ObserveHTTPRequest records a served HTTP request. route is the matched
// route template, never the raw path.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ClassifyError maps an error to a low-cardinality label.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeCanceled
	}
	var remote *domain.RemoteFetchError
	if errors.As(err, &remote) {
		return ErrorTypeRemote
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return ErrorTypeDB
	}
	return ErrorTypeUnknown
}
