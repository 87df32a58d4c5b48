package status

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wicaksana/gema/domain/entities"
)

var sessionStates = []entities.SessionState{
	entities.StateConnecting,
	entities.StateIdle,
	entities.StateListening,
	entities.StateProcessing,
	entities.StateSpeaking,
	entities.StateError,
	entities.StateClosed,
}

// PrometheusSink exposes each device's current state as a gauge vector: the
// active state's series is 1, every other state 0.
type PrometheusSink struct {
	states *prometheus.GaugeVec
}

func NewPrometheusSink(namespace string, reg prometheus.Registerer) *PrometheusSink {
	return &PrometheusSink{
		states: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_state",
			Help:      "Current session state per device.",
		}, []string{"device_id", "state"}),
	}
}

func (s *PrometheusSink) Publish(deviceID string, state entities.SessionState) {
	for _, st := range sessionStates {
		var value float64
		if st == state {
			value = 1
		}
		s.states.WithLabelValues(deviceID, string(st)).Set(value)
	}
}
