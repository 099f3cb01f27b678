package forensiccache

import (
	"context"
	"log/slog"
	"time"

	"docgate/internal/forensics"
	"docgate/pkg/platform/circuit"
	"docgate/pkg/requestcontext"
)

// Resilient serves from a primary Cache (Redis) and falls back to a local
// MemoryStore when the primary fails. A failing cache never fails the caller.
type Resilient struct {
	primary  Cache
	fallback *MemoryStore
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *Metrics
}

type ResilientOption func(*Resilient)

func WithLogger(logger *slog.Logger) ResilientOption {
	return func(r *Resilient) { r.logger = logger }
}

func WithMetrics(m *Metrics) ResilientOption {
	return func(r *Resilient) { r.metrics = m }
}

func WithBreaker(b *circuit.Breaker) ResilientOption {
	return func(r *Resilient) { r.breaker = b }
}

func NewResilient(primary Cache, fallback *MemoryStore, opts ...ResilientOption) *Resilient {
	r := &Resilient{
		primary:  primary,
		fallback: fallback,
		breaker:  circuit.New("forensic-cache"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resilient) Get(ctx context.Context, fileHash string) (*forensics.Report, bool, error) {
	report, ok, err := r.primary.Get(ctx, fileHash)
	if err != nil || !r.succeeded(ctx, "get") {
		if err != nil {
			r.failed(ctx, "get", err)
		}
		report, ok, _ = r.fallback.Get(ctx, fileHash)
	}
	r.metrics.observeLookup(ok)
	return report, ok, nil
}

func (r *Resilient) Entry(ctx context.Context, fileHash string) (*Entry, bool, error) {
	entry, ok, err := r.primary.Entry(ctx, fileHash)
	if err != nil || !r.succeeded(ctx, "entry") {
		if err != nil {
			r.failed(ctx, "entry", err)
		}
		return r.fallback.Entry(ctx, fileHash)
	}
	return entry, ok, nil
}

func (r *Resilient) Put(ctx context.Context, fileHash string, report *forensics.Report, ttl time.Duration) error {
	if err := r.primary.Put(ctx, fileHash, report, ttl); err != nil {
		r.failed(ctx, "put", err)
		return r.fallback.Put(ctx, fileHash, report, ttl)
	}
	if !r.succeeded(ctx, "put") {
		return r.fallback.Put(ctx, fileHash, report, ttl)
	}
	return nil
}

func (r *Resilient) Stats(ctx context.Context) (Stats, error) {
	stats, err := r.primary.Stats(ctx)
	if err != nil {
		r.failed(ctx, "stats", err)
		stats, _ = r.fallback.Stats(ctx)
		stats.Degraded = true
		return stats, nil
	}
	stats.Degraded = r.breaker.IsOpen()
	return stats, nil
}

func (r *Resilient) ResetStats(ctx context.Context) error {
	_ = r.fallback.ResetStats(ctx)
	return r.primary.ResetStats(ctx)
}

func (r *Resilient) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	local, _ := r.fallback.Purge(ctx, olderThan)
	n, err := r.primary.Purge(ctx, olderThan)
	if err != nil {
		return local, err
	}
	return n + local, nil
}

// succeeded records a primary success and reports whether its result is usable.
func (r *Resilient) succeeded(ctx context.Context, op string) bool {
	usePrimary, change := r.breaker.RecordSuccess()
	if change.Closed {
		r.metrics.setDegraded(false)
		r.logger.InfoContext(ctx, "forensic cache primary recovered",
			"request_id", requestcontext.RequestID(ctx),
			"op", op,
		)
	}
	return usePrimary
}

func (r *Resilient) failed(ctx context.Context, op string, err error) {
	r.metrics.incPrimaryErrors()
	_, change := r.breaker.RecordFailure()
	if change.Opened {
		r.metrics.setDegraded(true)
		r.logger.WarnContext(ctx, "forensic cache degraded to local fallback",
			"request_id", requestcontext.RequestID(ctx),
			"op", op,
			"error", err,
		)
		return
	}
	r.logger.DebugContext(ctx, "forensic cache primary error",
		"request_id", requestcontext.RequestID(ctx),
		"op", op,
		"error", err,
	)
}
