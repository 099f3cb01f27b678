package service

import (
	"context"
	"log/slog"
	"time"

	"docgate/internal/document/models"
	"docgate/internal/issuance"
	dErrors "docgate/pkg/domain-errors"
	"docgate/pkg/requestcontext"
)

const (
	defaultReconcileBatch    = 50
	defaultReconcileInterval = time.Minute
)

// ReconcileResult summarises one reconciliation pass.
type ReconcileResult struct {
	Attempted int
	Issued    int
	Retrying  int
	Exhausted int
}

// Reconciler retries issuances that failed after their document was verified.
type Reconciler struct {
	service  *Service
	pending  issuance.PendingStore
	batch    int
	interval time.Duration
	logger   *slog.Logger
	gauge    func(int)
}

type ReconcilerOption func(*Reconciler)

func WithReconcileLogger(logger *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = logger }
}

func WithReconcileInterval(interval time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

func WithReconcileBatch(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithBacklogGauge reports the queued backlog after each pass.
func WithBacklogGauge(set func(int)) ReconcilerOption {
	return func(r *Reconciler) { r.gauge = set }
}

func NewReconciler(service *Service, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		service:  service,
		pending:  service.pending,
		batch:    defaultReconcileBatch,
		interval: defaultReconcileInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce retries every pending issuance that is due.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileResult, error) {
	ctx, span := r.service.tracer.Start(ctx, "document.Reconcile")
	defer span.End()

	var res ReconcileResult
	now := requestcontext.Now(ctx)
	due, err := r.pending.Due(ctx, now, r.batch)
	if err != nil {
		return res, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending issuances")
	}

	for _, p := range due {
		res.Attempted++
		switch r.retry(ctx, p, now) {
		case retryIssued:
			res.Issued++
		case retryExhausted:
			res.Exhausted++
		case retryAgain:
			res.Retrying++
		}
	}

	if r.gauge != nil {
		if n, err := r.pending.CountQueued(ctx); err == nil {
			r.gauge(n)
		}
	}
	if res.Attempted > 0 {
		r.logger.InfoContext(ctx, "issuance reconciliation pass",
			"attempted", res.Attempted,
			"issued", res.Issued,
			"retrying", res.Retrying,
			"exhausted", res.Exhausted,
		)
	}
	return res, nil
}

type retryOutcome int

const (
	retryAgain retryOutcome = iota
	retryIssued
	retryExhausted
	retryDropped
)

func (r *Reconciler) retry(ctx context.Context, p *issuance.Pending, now time.Time) retryOutcome {
	doc, err := r.service.load(ctx, p.DocumentID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			r.drop(ctx, p, "document no longer exists")
			return retryDropped
		}
		r.logger.ErrorContext(ctx, "failed to load document for reconciliation",
			"document_id", p.DocumentID,
			"error", err,
		)
		return retryAgain
	}
	if doc.IsIssued() {
		r.drop(ctx, p, "already issued")
		return retryDropped
	}
	if doc.Status != models.StatusVerified {
		r.drop(ctx, p, "document is "+string(doc.Status))
		return retryDropped
	}

	receipt, err := r.service.issuer.Issue(ctx, p.Request)
	if err == nil {
		if _, err := r.service.RecordIssuance(ctx, p.DocumentID, receipt); err != nil {
			r.logger.ErrorContext(ctx, "CRITICAL: issued on-chain but failed to record receipt",
				"document_id", p.DocumentID,
				"reference_id", receipt.ReferenceID,
				"error", err,
			)
			return retryAgain
		}
		if err := r.pending.Delete(ctx, p.DocumentID); err != nil {
			r.logger.WarnContext(ctx, "failed to clear reconciled issuance",
				"document_id", p.DocumentID,
				"error", err,
			)
		}
		return retryIssued
	}

	p.Attempts++
	p.LastError = err.Error()
	p.UpdatedAt = now
	outcome := retryAgain
	if p.Attempts >= r.service.maxAttempts {
		p.State = issuance.PendingStateFailed
		outcome = retryExhausted
		if markErr := r.service.markIssuanceFailed(ctx, p.DocumentID); markErr != nil {
			r.logger.ErrorContext(ctx, "failed to mark issuance failed",
				"document_id", p.DocumentID,
				"error", markErr,
			)
		}
		r.logger.ErrorContext(ctx, "issuance attempts exhausted",
			"document_id", p.DocumentID,
			"attempts", p.Attempts,
			"error", err,
		)
	} else {
		p.NextAttemptAt = now.Add(issuance.Backoff(p.Attempts, r.service.retryBase))
	}
	if err := r.pending.Update(ctx, p); err != nil {
		r.logger.ErrorContext(ctx, "failed to update pending issuance",
			"document_id", p.DocumentID,
			"error", err,
		)
	}
	return outcome
}

func (r *Reconciler) drop(ctx context.Context, p *issuance.Pending, reason string) {
	r.logger.InfoContext(ctx, "dropping pending issuance",
		"document_id", p.DocumentID,
		"reason", reason,
	)
	if err := r.pending.Delete(ctx, p.DocumentID); err != nil {
		r.logger.WarnContext(ctx, "failed to drop pending issuance",
			"document_id", p.DocumentID,
			"error", err,
		)
	}
}

// Run calls RunOnce every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.ErrorContext(ctx, "issuance reconciliation failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
