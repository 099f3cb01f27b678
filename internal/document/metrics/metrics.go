package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the document lifecycle.
type Metrics struct {
	Transitions        *prometheus.CounterVec
	IdentityHolds      prometheus.Counter
	IssuanceDeferred   prometheus.Counter
	Expired            prometheus.Counter
	DispositionLatency prometheus.Histogram
}

// New creates a new Metrics instance with the document lifecycle metrics registered.
func New() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "docgate_document_transitions_total",
			Help: "Document state transitions, by target status and actor source",
		}, []string{"status", "source"}),
		IdentityHolds: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docgate_document_identity_holds_total",
			Help: "Documents placed on identity hold after a biometric collision",
		}),
		IssuanceDeferred: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docgate_document_issuance_deferred_total",
			Help: "Verified documents whose issuance failed and was queued for reconciliation",
		}),
		Expired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "docgate_document_expired_total",
			Help: "Documents moved to EXPIRED by the expiry sweep",
		}),
		DispositionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "docgate_document_apply_disposition_duration_seconds",
			Help:    "Duration of ApplyDisposition, excluding issuance",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncTransition(status, source string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(status, source).Inc()
}

func (m *Metrics) IncIdentityHold() {
	if m == nil {
		return
	}
	m.IdentityHolds.Inc()
}

func (m *Metrics) IncIssuanceDeferred() {
	if m == nil {
		return
	}
	m.IssuanceDeferred.Inc()
}

func (m *Metrics) AddExpired(n int) {
	if m == nil {
		return
	}
	m.Expired.Add(float64(n))
}

// ObserveDisposition records the duration of ApplyDisposition.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveDisposition(start time.Time) {
	if m == nil {
		return
	}
	m.DispositionLatency.Observe(time.Since(start).Seconds())
}
