package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the bridge.
type Metrics struct {
	ActiveSessions   prometheus.Gauge
	WSMessages       *prometheus.CounterVec
	StateTransitions *prometheus.CounterVec
	ProtocolErrors   *prometheus.CounterVec
	PipelineFailures prometheus.Counter
	Supersessions    prometheus.Counter
	ExchangeDuration prometheus.Histogram
}

// NewMetrics registers all instruments on reg. Pass a fresh registry in
// tests to avoid duplicate registration.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live device sessions.",
		}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session state transitions by target state.",
		}, []string{"state"}),
		ProtocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Protocol errors by code.",
		}, []string{"code"}),
		PipelineFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_failures_total",
			Help:      "Pipeline exchanges that ended in an error.",
		}),
		Supersessions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supersessions_total",
			Help:      "Sessions force-closed by a newer connection with the same identity.",
		}),
		ExchangeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Wall time of one listen-to-reply exchange.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16},
		}),
	}
}

func (m *Metrics) ObserveExchange(d time.Duration) {
	m.ExchangeDuration.Observe(d.Seconds())
}

// Handler serves the default registry at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
