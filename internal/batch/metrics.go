package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Items    *prometheus.CounterVec
	Replays  prometheus.Counter
	Duration prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		Items: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docgate_batch_items_total",
			Help: "Batch items processed, by action and outcome",
		}, []string{"action", "outcome"}),
		Replays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docgate_batch_idempotent_replays_total",
			Help: "Batches answered from a stored result for a repeated Idempotency-Key",
		}),
		Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "docgate_batch_duration_seconds",
			Help:    "Time to process a batch",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

func (m *Metrics) observeItem(r ItemResult) {
	if m == nil {
		return
	}
	outcome := "success"
	if r.Error != nil {
		outcome = r.Error.Code
	}
	m.Items.WithLabelValues(r.Action, outcome).Inc()
}

func (m *Metrics) incReplays() {
	if m == nil {
		return
	}
	m.Replays.Inc()
}

func (m *Metrics) observeDuration(seconds float64) {
	if m == nil {
		return
	}
	m.Duration.Observe(seconds)
}
