package msgstore

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds subscription collectors, labeled by subscriber id
type Metrics struct {
	processed   *prometheus.CounterVec
	failures    *prometheus.CounterVec
	checkpoints *prometheus.CounterVec
	position    *prometheus.GaugeVec
	state       *prometheus.GaugeVec
}

// NewMetrics creates subscription collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msgstore",
			Subsystem: "subscription",
			Name:      "messages_processed_total",
			Help:      "Messages successfully handled",
		}, []string{"subscriber"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msgstore",
			Subsystem: "subscription",
			Name:      "failures_total",
			Help:      "Subscriptions stopped by an error",
		}, []string{"subscriber"}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msgstore",
			Subsystem: "subscription",
			Name:      "checkpoints_written_total",
			Help:      "Checkpoint writes",
		}, []string{"subscriber"}),
		position: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "msgstore",
			Subsystem: "subscription",
			Name:      "position",
			Help:      "Global position of the last processed message",
		}, []string{"subscriber"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "msgstore",
			Subsystem: "subscription",
			Name:      "state",
			Help:      "0 stopped, 1 polling, 2 idle",
		}, []string{"subscriber"}),
	}

	for _, c := range []prometheus.Collector{m.processed, m.failures, m.checkpoints, m.position, m.state} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "registering subscription metrics")
		}
	}

	return m, nil
}
