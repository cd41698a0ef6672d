package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the transport metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "pushline").
	Namespace string

	// Subsystem is the metrics subsystem (default: "transport").
	Subsystem string

	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels
}

// MetricsOption configures NewMetrics.
type MetricsOption func(*MetricsConfig)

// WithMetricsNamespace sets the metrics namespace.
func WithMetricsNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// Metrics counts what the transports see on the wire. A nil *Metrics is a
// valid no-op collector.
type Metrics struct {
	messages       *prometheus.CounterVec
	dispatchErrors *prometheus.CounterVec
	envelopeErrors *prometheus.CounterVec
	heartbeats     *prometheus.CounterVec
	aborted        *prometheus.CounterVec
	sends          *prometheus.CounterVec
}

// NewMetrics registers the transport metrics with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer, opts ...MetricsOption) *Metrics {
	config := MetricsConfig{Namespace: "pushline", Subsystem: "transport"}
	for _, opt := range opts {
		opt(&config)
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}

	return &Metrics{
		messages:       counter("messages_total", "Messages dispatched to the connection", "transport"),
		dispatchErrors: counter("dispatch_errors_total", "Messages whose handler failed", "transport"),
		envelopeErrors: counter("envelope_errors_total", "Response bodies rejected as envelopes", "transport"),
		heartbeats:     counter("heartbeats_total", "Envelopes without fields", "transport"),
		aborted:        counter("requests_aborted_total", "In-flight requests aborted by Stop", "transport"),
		sends:          counter("sends_total", "Send calls by outcome", "transport", "status"),
	}
}

func (m *Metrics) observeEnvelope(transport string, res Result) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(transport).Add(float64(res.Dispatched))
	m.dispatchErrors.WithLabelValues(transport).Add(float64(res.Failed))
	if res.Err != nil {
		m.envelopeErrors.WithLabelValues(transport).Inc()
	} else if res.Heartbeat() {
		m.heartbeats.WithLabelValues(transport).Inc()
	}
}

func (m *Metrics) observeAbort(transport string) {
	if m == nil {
		return
	}
	m.aborted.WithLabelValues(transport).Inc()
}

func (m *Metrics) observeSend(transport string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.sends.WithLabelValues(transport, status).Inc()
}
