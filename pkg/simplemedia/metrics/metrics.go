// Package metrics exposes Prometheus instrumentation for uploads, blob store
// operations and HTTP requests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "simple_media"

	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics holds every collector, registered on one registerer.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	UploadsTotal     *prometheus.CounterVec
	UploadBytesTotal *prometheus.CounterVec
	DeletesTotal     prometheus.Counter
	StoreOpsTotal    *prometheus.CounterVec
	StoreDuration    *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// a server and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method", "endpoint"},
		),
		UploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "media",
				Name:      "uploads_total",
				Help:      "Uploads by outcome (created, associated, duplicate) or failure kind",
			},
			[]string{"outcome"},
		),
		UploadBytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "media",
				Name:      "stored_bytes_total",
				Help:      "Bytes written to blob stores by first-time uploads",
			},
			[]string{"mime_type"},
		),
		DeletesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "media",
				Name:      "deletes_total",
				Help:      "Soft deleted media records",
			},
		),
		StoreOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operations_total",
				Help:      "Blob store operations",
			},
			[]string{"backend", "operation", "status"},
		),
		StoreDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operation_duration_seconds",
				Help:      "Blob store operation duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"backend", "operation"},
		),
	}
}

// RecordRequest records an HTTP request
func (m *Metrics) RecordRequest(method, endpoint, status string, durationSec float64) {
	m.RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	m.RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordStoreOperation records a blob store call
func (m *Metrics) RecordStoreOperation(backend, operation string, err error, durationSec float64) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.StoreOpsTotal.WithLabelValues(backend, operation, status).Inc()
	m.StoreDuration.WithLabelValues(backend, operation).Observe(durationSec)
}

// Handler serves the collectors of g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
