package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for trail publishing.
type Metrics struct {
	Published           prometheus.Counter
	RenderFailures      prometheus.Counter
	PersistFailures     prometheus.Counter
	BufferFullDropped   prometheus.Counter
	CircuitOpenDropped  prometheus.Counter
	CircuitBreakerState prometheus.Gauge
	PersistDuration     prometheus.Histogram
}

// NewMetrics registers the publisher metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_publisher_published_total",
			Help: "Total number of trails handed to the sink",
		}),
		RenderFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_publisher_render_failures_total",
			Help: "Total number of trails that could not be rendered",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_publisher_persist_failures_total",
			Help: "Total number of sink writes that failed",
		}),
		BufferFullDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_publisher_buffer_full_dropped_total",
			Help: "Total number of trails dropped because the async buffer was full",
		}),
		CircuitOpenDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_publisher_circuit_open_dropped_total",
			Help: "Total number of trails dropped because the sink circuit was open",
		}),
		CircuitBreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "audittrail_publisher_circuit_breaker_state",
			Help: "Current sink circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
		PersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audittrail_publisher_persist_duration_seconds",
			Help:    "Latency of sink writes",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) incPublished() {
	if m != nil {
		m.Published.Inc()
	}
}

func (m *Metrics) incRenderFailures() {
	if m != nil {
		m.RenderFailures.Inc()
	}
}

func (m *Metrics) incPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) incBufferFullDropped() {
	if m != nil {
		m.BufferFullDropped.Inc()
	}
}

func (m *Metrics) incCircuitOpenDropped() {
	if m != nil {
		m.CircuitOpenDropped.Inc()
	}
}

func (m *Metrics) observePersistDuration(seconds float64) {
	if m != nil {
		m.PersistDuration.Observe(seconds)
	}
}

func (m *Metrics) setCircuitBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}
