package scraper

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lukemcguire/imagegrab/result"
)

// Metrics bundles Prometheus collectors for extraction and downloads.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ImagesFound     prometheus.Counter
	DownloadsTotal  *prometheus.CounterVec
	BytesWritten    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagegrab_requests_total",
			Help: "Total HTTP requests issued, by phase.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imagegrab_request_duration_seconds",
			Help:    "Time to response headers, by phase.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
	imagesFound := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "imagegrab_images_found_total",
			Help: "Image URLs kept after filtering.",
		},
	)
	downloads := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagegrab_downloads_total",
			Help: "Finished downloads by outcome.",
		},
		[]string{"outcome"},
	)
	bytesWritten := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "imagegrab_bytes_written_total",
			Help: "Bytes written to disk.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagegrab_errors_total",
			Help: "Failures by error kind.",
		},
		[]string{"kind"},
	)

	registry.MustRegister(requests, requestDuration, imagesFound, downloads, bytesWritten, errorsTotal)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		ImagesFound:     imagesFound,
		DownloadsTotal:  downloads,
		BytesWritten:    bytesWritten,
		ErrorsTotal:     errorsTotal,
	}
}

// IncRequest increments the requests counter for phase.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records a request latency for phase.
func (m *Metrics) ObserveDuration(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// AddImagesFound adds n kept image URLs.
func (m *Metrics) AddImagesFound(n int) {
	if m == nil {
		return
	}
	m.ImagesFound.Add(float64(n))
}

// ObserveOutcome records one finished download.
func (m *Metrics) ObserveOutcome(o result.Outcome) {
	if m == nil {
		return
	}
	if o.OK() {
		m.DownloadsTotal.WithLabelValues("success").Inc()
		m.BytesWritten.Add(float64(o.Bytes))
		return
	}
	m.DownloadsTotal.WithLabelValues("failure").Inc()
	m.IncError(o.Kind)
}

// IncError increments the errors counter for kind.
func (m *Metrics) IncError(kind result.ErrorKind) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(string(kind)).Inc()
}

// WriteTextfile dumps the registry in the Prometheus text format, suitable
// for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
