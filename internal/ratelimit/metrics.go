package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions *prometheus.CounterVec
	Errors    prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docgate_rate_limit_decisions_total",
			Help: "Rate limit decisions by class and outcome (allowed, limited)",
		}, []string{"class", "outcome"}),
		Errors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docgate_rate_limit_errors_total",
			Help: "Limiter failures; the request is let through",
		}),
	}
}

func (m *Metrics) observe(class string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "limited"
	if allowed {
		outcome = "allowed"
	}
	m.Decisions.WithLabelValues(class, outcome).Inc()
}

func (m *Metrics) incErrors() {
	if m != nil {
		m.Errors.Inc()
	}
}
