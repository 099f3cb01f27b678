package policy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for policy outcomes.
type Metrics struct {
	Dispositions       *prometheus.CounterVec
	AdvisoryMismatches prometheus.Counter
}

// NewMetrics registers the policy metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Dispositions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docgate_policy_dispositions_total",
			Help: "Dispositions computed by the decision policy, by disposition and reason",
		}, []string{"disposition", "reason"}),
		AdvisoryMismatches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docgate_policy_advisory_mismatch_total",
			Help: "Reports whose advisory action disagreed with the computed disposition",
		}),
	}
}

// Observe records a decision and whether the advisory action disagreed.
func (m *Metrics) Observe(d Decision, advisoryAgrees bool) {
	if m == nil {
		return
	}
	m.Dispositions.WithLabelValues(string(d.Disposition), string(d.Reason)).Inc()
	if !advisoryAgrees {
		m.AdvisoryMismatches.Inc()
	}
}
