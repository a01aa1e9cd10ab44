package prometheus

import (
	"time"

	"github.com/marmos91/gofor/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// gopherMetrics is the Prometheus implementation of metrics.GopherMetrics.
type gopherMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	bytesSent              *prometheus.CounterVec
	menuCache              *prometheus.CounterVec
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
	rateLimited            prometheus.Counter
}

// NewGopherMetrics creates a new Prometheus-backed GopherMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewGopherMetrics() metrics.GopherMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopGopherMetrics()
	}
	return newGopherMetrics(metrics.GetRegistry())
}

func newGopherMetrics(reg prometheus.Registerer) *gopherMetrics {
	return &gopherMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gofor_gopher_requests_total",
				Help: "Total number of Gopher requests by outcome",
			},
			[]string{"outcome"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "gofor_gopher_request_duration_milliseconds",
				Help: "Time from accept to the last response byte, in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"outcome"},
		),
		bytesSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gofor_gopher_bytes_sent_total",
				Help: "Total response bytes written to Gopher clients",
			},
			[]string{"outcome"},
		),
		menuCache: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gofor_gopher_menu_cache_lookups_total",
				Help: "Menu cache lookups by result",
			},
			[]string{"result"}, // hit or miss
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "gofor_gopher_active_connections",
				Help: "Current number of active Gopher connections",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gofor_gopher_connections_accepted_total",
				Help: "Total number of Gopher connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gofor_gopher_connections_closed_total",
				Help: "Total number of Gopher connections closed",
			},
		),
		connectionsForceClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gofor_gopher_connections_force_closed_total",
				Help: "Total number of Gopher connections force-closed during shutdown timeout",
			},
		),
		rateLimited: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gofor_gopher_rate_limited_total",
				Help: "Total number of accepts delayed by the connection rate limit",
			},
		),
	}
}

func (m *gopherMetrics) RecordRequest(outcome string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.requestDuration.WithLabelValues(outcome).Observe(duration.Seconds() * 1000) // Convert to milliseconds
}

func (m *gopherMetrics) RecordBytesSent(outcome string, bytes int64) {
	m.bytesSent.WithLabelValues(outcome).Add(float64(bytes))
}

func (m *gopherMetrics) RecordMenuCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.menuCache.WithLabelValues(result).Inc()
}

func (m *gopherMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *gopherMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *gopherMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *gopherMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}

func (m *gopherMetrics) RecordRateLimited() {
	m.rateLimited.Inc()
}
