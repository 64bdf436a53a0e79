package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/stockdesk/internal/model"
)

const namespace = "stockdesk"

var statuses = []model.ConnectionStatus{
	model.StatusDisconnected,
	model.StatusConnecting,
	model.StatusConnected,
	model.StatusReconnecting,
}

// Metrics contains all Prometheus metrics for a stockdesk instance.
type Metrics struct {
	registry *prometheus.Registry

	// Stream
	ConnectionStatus  *prometheus.GaugeVec
	Reconnects        prometheus.Counter
	ReconnectDelay    prometheus.Histogram
	HeartbeatTimeouts prometheus.Counter
	FramesDropped     prometheus.Counter
	BatchSize         prometheus.Histogram

	// Order queue
	OrderOutcomes *prometheus.CounterVec
	DrainDuration prometheus.Histogram
	QueueDepth    prometheus.Gauge
}

// New creates all metrics on a fresh registry, together with the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ConnectionStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_status",
			Help:      "1 for the current stream connection status, 0 otherwise",
		}, []string{"status"}),

		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_scheduled_total",
			Help:      "Total number of scheduled stream reconnect attempts",
		}),

		ReconnectDelay: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconnect_delay_seconds",
			Help:      "Delay before each reconnect attempt",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 60},
		}),

		HeartbeatTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_timeouts_total",
			Help:      "Total number of heartbeat timeouts",
		}),

		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Total number of malformed or unknown inbound frames",
		}),

		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_batch_size",
			Help:      "Number of distinct symbols per delivered update batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),

		OrderOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queued_order_outcomes_total",
			Help:      "Queued order outcomes by kind",
		}, []string{"outcome"}),

		DrainDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_drain_duration_seconds",
			Help:      "Time to drain the offline order queue",
			Buckets:   prometheus.DefBuckets,
		}),

		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of orders waiting in the offline queue",
		}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// StatusChanged sets the status gauge to one-hot on status.
func (m *Metrics) StatusChanged(status model.ConnectionStatus) {
	for _, s := range statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		m.ConnectionStatus.WithLabelValues(string(s)).Set(v)
	}
}

// ReconnectScheduled records a reconnect attempt and its delay.
func (m *Metrics) ReconnectScheduled(delay time.Duration) {
	m.Reconnects.Inc()
	m.ReconnectDelay.Observe(delay.Seconds())
}

// HeartbeatTimeout increments the heartbeat timeout counter.
func (m *Metrics) HeartbeatTimeout() {
	m.HeartbeatTimeouts.Inc()
}

// FrameDropped increments the dropped frame counter.
func (m *Metrics) FrameDropped() {
	m.FramesDropped.Inc()
}

// BatchFlushed records the size of a delivered update batch.
func (m *Metrics) BatchFlushed(updates int) {
	m.BatchSize.Observe(float64(updates))
}

// OrderOutcome counts a queued order outcome.
func (m *Metrics) OrderOutcome(outcome string) {
	m.OrderOutcomes.WithLabelValues(outcome).Inc()
}

// DrainCompleted records a drain pass duration.
func (m *Metrics) DrainCompleted(elapsed time.Duration) {
	m.DrainDuration.Observe(elapsed.Seconds())
}

// SetQueueDepth sets the queue depth gauge.
func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}
