package forensiccache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Lookups       *prometheus.CounterVec
	Degraded      prometheus.Gauge
	PrimaryErrors prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Lookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docgate_forensic_cache_lookups_total",
			Help: "Forensic cache lookups by result (hit, miss)",
		}, []string{"result"}),
		Degraded: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "docgate_forensic_cache_degraded",
			Help: "1 while the forensic cache is served from the in-process fallback",
		}),
		PrimaryErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docgate_forensic_cache_primary_errors_total",
			Help: "Errors returned by the primary forensic cache store",
		}),
	}
}

func (m *Metrics) observeLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.Lookups.WithLabelValues("hit").Inc()
		return
	}
	m.Lookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) setDegraded(degraded bool) {
	if m == nil {
		return
	}
	if degraded {
		m.Degraded.Set(1)
		return
	}
	m.Degraded.Set(0)
}

func (m *Metrics) incPrimaryErrors() {
	if m != nil {
		m.PrimaryErrors.Inc()
	}
}
