// Package compliance provides a fail-closed audit publisher for document
// lifecycle entries.
//
// Emit writes synchronously through the audit store, inside the caller's unit
// of work when one is active. If the write fails, an error is returned and the
// calling transition MUST fail.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "docgate/pkg/platform/audit"
	"docgate/pkg/requestcontext"
)

// Publisher emits audit entries with fail-closed semantics.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// New creates a compliance publisher.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store: store,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit validates and persists an audit entry. ID, Timestamp and RequestID are
// filled from ctx when empty.
func (p *Publisher) Emit(ctx context.Context, entry audit.Entry) error {
	start := time.Now()

	if entry.DocumentID.IsNil() {
		return fmt.Errorf("audit entry requires DocumentID")
	}
	if entry.ActorID.IsNil() {
		return fmt.Errorf("audit entry requires ActorID")
	}
	if !entry.Action.IsValid() {
		return fmt.Errorf("audit entry has unknown action %q", entry.Action)
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}

	if err := p.store.Append(ctx, entry); err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: audit entry persistence failed",
				"action", entry.Action,
				"document_id", entry.DocumentID,
				"error", err,
			)
		}
		return fmt.Errorf("audit persistence failed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.ObservePersistDuration(time.Since(start).Seconds())
		p.metrics.IncEventsEmitted(string(entry.Action))
	}
	return nil
}

// Close is a no-op for the synchronous publisher.
func (p *Publisher) Close() error {
	return nil
}
