package prometheus

import (
	"time"

	"github.com/marmos91/locationd/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// locationMetrics is the Prometheus implementation of metrics.LocationMetrics.
type locationMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	activeConnections      *prometheus.GaugeVec
	connectionsAccepted    *prometheus.CounterVec
	connectionsClosed      *prometheus.CounterVec
	connectionsForceClosed *prometheus.CounterVec
	checkpointsTotal       *prometheus.CounterVec
	checkpointDuration     *prometheus.HistogramVec
	checkpointEntries      *prometheus.GaugeVec
	directoryEntries       prometheus.Gauge
}

// NewLocationMetrics creates a Prometheus-backed LocationMetrics registered
// on the global registry.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewLocationMetrics() metrics.LocationMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopLocationMetrics()
	}
	return newLocationMetrics(metrics.GetRegistry())
}

func newLocationMetrics(reg prometheus.Registerer) *locationMetrics {
	return &locationMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "locationd_requests_total",
				Help: "Total number of requests by protocol, operation, and outcome",
			},
			[]string{"protocol", "operation", "outcome"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "locationd_request_duration_milliseconds",
				Help: "Duration of requests in milliseconds",
				Buckets: []float64{
					0.1,
					1,
					10,
					100,
					1000,
				},
			},
			[]string{"protocol", "operation"},
		),
		activeConnections: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "locationd_active_connections",
				Help: "Current number of connections being served",
			},
			[]string{"adapter"},
		),
		connectionsAccepted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "locationd_connections_accepted_total",
				Help: "Total number of connections accepted",
			},
			[]string{"adapter"},
		),
		connectionsClosed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "locationd_connections_closed_total",
				Help: "Total number of connections closed",
			},
			[]string{"adapter"},
		),
		connectionsForceClosed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "locationd_connections_force_closed_total",
				Help: "Total number of connections force-closed during shutdown timeout",
			},
			[]string{"adapter"},
		),
		checkpointsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "locationd_checkpoints_total",
				Help: "Total number of directory checkpoints by backend and status",
			},
			[]string{"backend", "status"},
		),
		checkpointDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "locationd_checkpoint_duration_milliseconds",
				Help:    "Duration of directory checkpoints in milliseconds",
				Buckets: []float64{1, 10, 100, 1000, 10000},
			},
			[]string{"backend"},
		),
		checkpointEntries: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "locationd_checkpoint_entries",
				Help: "Number of entries written by the last successful checkpoint",
			},
			[]string{"backend"},
		),
		directoryEntries: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "locationd_directory_entries",
				Help: "Current number of directory entries",
			},
		),
	}
}

func (m *locationMetrics) RecordRequest(protocol, operation, outcome string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(protocol, operation, outcome).Inc()
	m.requestDuration.WithLabelValues(protocol, operation).Observe(duration.Seconds() * 1000)
}

func (m *locationMetrics) SetActiveConnections(adapter string, count int32) {
	m.activeConnections.WithLabelValues(adapter).Set(float64(count))
}

func (m *locationMetrics) RecordConnectionAccepted(adapter string) {
	m.connectionsAccepted.WithLabelValues(adapter).Inc()
}

func (m *locationMetrics) RecordConnectionClosed(adapter string) {
	m.connectionsClosed.WithLabelValues(adapter).Inc()
}

func (m *locationMetrics) RecordConnectionForceClosed(adapter string) {
	m.connectionsForceClosed.WithLabelValues(adapter).Inc()
}

func (m *locationMetrics) RecordCheckpoint(backend string, entries int, duration time.Duration, err error) {
	if err != nil {
		m.checkpointsTotal.WithLabelValues(backend, "error").Inc()
		return
	}
	m.checkpointsTotal.WithLabelValues(backend, "success").Inc()
	m.checkpointDuration.WithLabelValues(backend).Observe(duration.Seconds() * 1000)
	m.checkpointEntries.WithLabelValues(backend).Set(float64(entries))
}

func (m *locationMetrics) SetDirectoryEntries(count int) {
	m.directoryEntries.Set(float64(count))
}
