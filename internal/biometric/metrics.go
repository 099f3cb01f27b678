package biometric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Checks *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Checks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docgate_biometric_checks_total",
			Help: "Biometric gate outcomes by result (clear, stored, duplicate, user_mismatch)",
		}, []string{"result"}),
	}
}

func (m *Metrics) incChecks(result string) {
	if m != nil {
		m.Checks.WithLabelValues(result).Inc()
	}
}
