package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"

	v1 "github.com/aevon-lab/segment-relay/internal/api/v1"
)

// Delivery outcomes recorded per operation.
const (
	OutcomeSent        = "sent"
	OutcomeFailed      = "failed"
	OutcomeDisabled    = "disabled"
	OutcomeInvalid     = "invalid"
	OutcomeUnsupported = "unsupported"
)

// Recorder counts dispatcher outcomes.
type Recorder interface {
	RecordOutcome(op v1.Operation, outcome string)
}

// NoopRecorder discards every observation.
type NoopRecorder struct{}

func (NoopRecorder) RecordOutcome(v1.Operation, string) {}

// Collector is the Prometheus Recorder.
type Collector struct {
	outcomes *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_dispatch_total",
			Help: "Analytics calls handled by the dispatcher, by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}
	reg.MustRegister(c.outcomes)
	return c
}

// RecordOutcome increments the counter for (op, outcome).
func (c *Collector) RecordOutcome(op v1.Operation, outcome string) {
	c.outcomes.WithLabelValues(string(op), outcome).Inc()
}
