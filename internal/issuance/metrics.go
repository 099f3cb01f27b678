package issuance

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "docgate/pkg/domain-errors"
)

type Metrics struct {
	Attempts *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	Pending  prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		Attempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docgate_issuance_attempts_total",
			Help: "Issuance attempts by kind and outcome",
		}, []string{"kind", "outcome"}),
		Duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docgate_issuance_duration_seconds",
			Help:    "Issuance relay call latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"kind"}),
		Pending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "docgate_issuance_pending",
			Help: "Issuances awaiting reconciliation after the last reconcile pass",
		}),
	}
}

func (m *Metrics) observe(kind Kind, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
	}
	m.Attempts.WithLabelValues(string(kind), outcome).Inc()
	m.Duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// SetPending records the reconciliation backlog.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.Pending.Set(float64(n))
}
