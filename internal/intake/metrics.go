package intake

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Submissions      *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
	CacheLookups     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docgate_intake_submissions_total",
			Help: "Document submissions and reanalyses by outcome (approved, review, rejected, analysis_failed, timeout, error)",
		}, []string{"outcome"}),
		AnalysisDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docgate_intake_analysis_duration_seconds",
			Help:    "Latency of the external analysis call",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 180},
		}, []string{"result"}),
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docgate_intake_cache_lookups_total",
			Help: "Forensic cache lookups made by intake, by result (hit, miss, bypass)",
		}, []string{"result"}),
	}
}

func (m *Metrics) incSubmission(outcome string) {
	if m != nil {
		m.Submissions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) observeAnalysis(start time.Time, result string) {
	if m != nil {
		m.AnalysisDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) incCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}
