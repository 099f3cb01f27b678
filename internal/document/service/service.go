// Package service owns the document state machine. Every transition is
// applied under the document's lock together with exactly one audit entry;
// issuance runs after the transition commits and never rolls it back.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docgate/internal/document/metrics"
	"docgate/internal/document/models"
	"docgate/internal/forensics"
	"docgate/internal/issuance"
	"docgate/internal/policy"
	"docgate/pkg/attrs"
	id "docgate/pkg/domain"
	dErrors "docgate/pkg/domain-errors"
	"docgate/pkg/platform/audit"
	"docgate/pkg/platform/sentinel"
	"docgate/pkg/requestcontext"
)

const (
	expirySweepBatch        = 500
	defaultIssuanceAttempts = 8
)

// Outcome is the result of applying a disposition.
type Outcome struct {
	Document *models.Document
	// Receipt is set when issuance completed inline.
	Receipt *issuance.Receipt
	// IssuanceWarning is set when the document was verified but issuance was
	// deferred to reconciliation.
	IssuanceWarning string
}

// Service orchestrates document lifecycle transitions.
type Service struct {
	store   Store
	tx      StoreTx
	auditor AuditPublisher
	gate    BiometricGate
	issuer  Issuer
	pending issuance.PendingStore
	policy  policy.Policy

	retryBase   time.Duration
	maxAttempts int

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithPolicy sets the policy used to recompute decisions for status lookups.
func WithPolicy(p policy.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithIssuanceRetry configures reconciliation backoff and the attempt limit
// after which a pending issuance is marked failed.
func WithIssuanceRetry(base time.Duration, maxAttempts int) Option {
	return func(s *Service) {
		if base > 0 {
			s.retryBase = base
		}
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
	}
}

// New constructs a Service.
func New(store Store, tx StoreTx, auditor AuditPublisher, gate BiometricGate, issuer Issuer, pending issuance.PendingStore, opts ...Option) *Service {
	s := &Service{
		store:       store,
		tx:          tx,
		auditor:     auditor,
		gate:        gate,
		issuer:      issuer,
		pending:     pending,
		policy:      policy.Default(),
		maxAttempts: defaultIssuanceAttempts,
		logger:      slog.Default(),
		tracer:      otel.Tracer("docgate/document"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create persists a new PENDING document.
func (s *Service) Create(ctx context.Context, doc *models.Document) error {
	if doc == nil || doc.Status != models.StatusPending {
		return dErrors.New(dErrors.CodeInvariantViolation, "new documents must be pending")
	}
	if err := s.store.Create(ctx, doc); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create document")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, documentID id.DocumentID) (*models.Document, error) {
	return s.load(ctx, documentID)
}

// SaveReport attaches an analysis report to a PENDING document, replacing any
// earlier report.
func (s *Service) SaveReport(ctx context.Context, documentID id.DocumentID, report *forensics.Report) (*models.Document, error) {
	var saved *models.Document
	err := s.tx.RunInTx(ctx, documentID, func(txCtx context.Context) error {
		doc, err := s.load(txCtx, documentID)
		if err != nil {
			return err
		}
		if doc.Status != models.StatusPending {
			return dErrors.New(dErrors.CodeInvalidTransition, "only pending documents can be analysed").
				WithDetail("current_status", string(doc.Status))
		}
		doc.Report = report.Clone()
		doc.UpdatedAt = requestcontext.Now(ctx)
		if err := s.store.Update(txCtx, doc); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save report")
		}
		saved = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// ApplyDisposition applies a policy or maker disposition to a PENDING document.
//
// APPROVED claims the owner's biometric identity, verifies the document and
// dispatches issuance. REJECTED rejects it. REVIEW records the routing and
// checks the biometric identity without claiming it. A biometric collision
// puts the document on identity hold and returns DuplicateIdentity.
func (s *Service) ApplyDisposition(ctx context.Context, documentID id.DocumentID, disposition policy.Disposition, actor models.Actor, comments string) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "document.ApplyDisposition", trace.WithAttributes(
		attribute.String("document_id", documentID.String()),
		attribute.String("disposition", string(disposition)),
		attribute.String("actor_source", string(actor.Source)),
	))
	defer span.End()

	start := time.Now()
	defer s.metrics.ObserveDisposition(start)

	if !disposition.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown disposition")
	}
	if actor.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "actor is required")
	}

	var (
		doc     *models.Document
		holdErr error
	)
	err := s.tx.RunInTx(ctx, documentID, func(txCtx context.Context) error {
		current, err := s.load(txCtx, documentID)
		if err != nil {
			return err
		}
		if current.Status != models.StatusPending {
			return dErrors.New(dErrors.CodeInvalidTransition,
				"document is "+string(current.Status)+"; only pending documents accept a disposition").
				WithDetail("current_status", string(current.Status)).
				WithDetail("document_id", documentID.String())
		}

		now := requestcontext.Now(ctx)
		switch disposition {
		case policy.DispositionApproved:
			if _, err := s.gate.Screen(txCtx, current.UserID, current.Type, current.Report, true); err != nil {
				if !dErrors.HasCode(err, dErrors.CodeDuplicateIdentity) {
					return err
				}
				holdErr = err
				return s.hold(txCtx, current, disposition, now)
			}
			if err := current.Verify(now); err != nil {
				return err
			}
			current.LastDisposition = disposition
			if err := s.store.Update(txCtx, current); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update document")
			}
			if err := s.emit(txCtx, current, actor, actor.VerifiedAction(), comments); err != nil {
				return err
			}

		case policy.DispositionRejected:
			if err := current.Reject(now); err != nil {
				return err
			}
			current.LastDisposition = disposition
			if err := s.store.Update(txCtx, current); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update document")
			}
			if err := s.emit(txCtx, current, actor, actor.RejectedAction(), comments); err != nil {
				return err
			}

		case policy.DispositionReview:
			if _, err := s.gate.Screen(txCtx, current.UserID, current.Type, current.Report, false); err != nil {
				if !dErrors.HasCode(err, dErrors.CodeDuplicateIdentity) {
					return err
				}
				holdErr = err
				return s.hold(txCtx, current, disposition, now)
			}
			current.LastDisposition = disposition
			current.UpdatedAt = now
			if err := s.store.Update(txCtx, current); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update document")
			}
		}
		doc = current
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	if holdErr != nil {
		s.metrics.IncIdentityHold()
		s.logAudit(ctx, "document_identity_hold",
			"document_id", documentID.String(),
			"status", string(models.StatusPending),
			"source", string(actor.Source),
		)
		span.SetStatus(codes.Error, string(dErrors.CodeDuplicateIdentity))
		return nil, holdErr
	}

	if doc.Status != models.StatusPending {
		s.logAudit(ctx, "document_"+string(doc.Status),
			"document_id", documentID.String(),
			"user_id", doc.UserID.String(),
			"status", string(doc.Status),
			"source", string(actor.Source),
		)
	}

	outcome := &Outcome{Document: doc}
	if doc.Status == models.StatusVerified {
		s.issue(ctx, outcome)
	}
	return outcome, nil
}

func (s *Service) hold(ctx context.Context, doc *models.Document, disposition policy.Disposition, now time.Time) error {
	doc.IdentityHold = true
	doc.LastDisposition = disposition
	doc.UpdatedAt = now
	if err := s.store.Update(ctx, doc); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to place identity hold")
	}
	return nil
}

// issue dispatches issuance for a freshly verified document. Failures are
// logged and queued for reconciliation; they never undo verification.
func (s *Service) issue(ctx context.Context, outcome *Outcome) {
	doc := outcome.Document
	req := issuance.NewRequest(subjectOf(doc))

	receipt, err := s.issuer.Issue(ctx, req)
	// The document is already VERIFIED; bookkeeping must finish even when the
	// caller goes away.
	bookCtx := context.WithoutCancel(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "issuance failed after verification",
			"request_id", requestcontext.RequestID(ctx),
			"document_id", doc.ID,
			"blockchain_type", doc.BlockchainType,
			"error_code", dErrors.CodeOf(err),
			"error", err,
		)
		outcome.IssuanceWarning = "document verified; issuance deferred: " + string(dErrors.CodeOf(err))
		updated, deferErr := s.deferIssuance(bookCtx, doc.ID, req, err)
		if deferErr != nil {
			s.logger.ErrorContext(ctx, "CRITICAL: failed to queue issuance for reconciliation",
				"request_id", requestcontext.RequestID(ctx),
				"document_id", doc.ID,
				"error", deferErr,
			)
			return
		}
		outcome.Document = updated
		return
	}

	updated, err := s.RecordIssuance(bookCtx, doc.ID, receipt)
	if err != nil {
		s.logger.ErrorContext(ctx, "CRITICAL: issued on-chain but failed to record receipt",
			"request_id", requestcontext.RequestID(ctx),
			"document_id", doc.ID,
			"reference_id", receipt.ReferenceID,
			"transaction_ref", receipt.TransactionRef,
			"error", err,
		)
		outcome.IssuanceWarning = "document issued; receipt not recorded"
		return
	}
	outcome.Document = updated
	outcome.Receipt = &receipt
}

func (s *Service) deferIssuance(ctx context.Context, documentID id.DocumentID, req issuance.Request, cause error) (*models.Document, error) {
	var updated *models.Document
	err := s.tx.RunInTx(ctx, documentID, func(txCtx context.Context) error {
		doc, err := s.load(txCtx, documentID)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		doc.IssuanceStatus = models.IssuancePending
		doc.UpdatedAt = now
		if err := s.store.Update(txCtx, doc); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark issuance pending")
		}
		if err := s.pending.Enqueue(txCtx, &issuance.Pending{
			DocumentID:    documentID,
			Request:       req,
			State:         issuance.PendingStateQueued,
			Attempts:      1,
			LastError:     cause.Error(),
			NextAttemptAt: now.Add(issuance.Backoff(1, s.retryBase)),
			CreatedAt:     now,
			UpdatedAt:     now,
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to enqueue pending issuance")
		}
		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncIssuanceDeferred()
	return updated, nil
}

// RecordIssuance stores the on-chain reference for a VERIFIED document. A
// second receipt for an issued document fails with Conflict.
func (s *Service) RecordIssuance(ctx context.Context, documentID id.DocumentID, receipt issuance.Receipt) (*models.Document, error) {
	var updated *models.Document
	err := s.tx.RunInTx(ctx, documentID, func(txCtx context.Context) error {
		doc, err := s.load(txCtx, documentID)
		if err != nil {
			return err
		}
		if err := doc.RecordIssuance(blockchainOf(receipt.Kind), receipt.ReferenceID, receipt.TransactionRef, requestcontext.Now(ctx)); err != nil {
			return err
		}
		if err := s.store.Update(txCtx, doc); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record issuance")
		}
		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "document issued",
		"request_id", requestcontext.RequestID(ctx),
		"document_id", documentID,
		"kind", receipt.Kind,
		"reference_id", receipt.ReferenceID,
	)
	return updated, nil
}

// markIssuanceFailed flags a document whose reconciliation attempts ran out.
func (s *Service) markIssuanceFailed(ctx context.Context, documentID id.DocumentID) error {
	return s.tx.RunInTx(ctx, documentID, func(txCtx context.Context) error {
		doc, err := s.load(txCtx, documentID)
		if err != nil {
			return err
		}
		if doc.IsIssued() {
			return nil
		}
		doc.IssuanceStatus = models.IssuanceFailed
		doc.UpdatedAt = requestcontext.Now(ctx)
		return s.store.Update(txCtx, doc)
	})
}

// ExpireDue moves every VERIFIED document past its validity to EXPIRED with a
// DOCUMENT_EXPIRED entry. Documents already expired are skipped, so repeated
// sweeps are idempotent. It returns the number of documents expired.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "document.ExpireDue")
	defer span.End()

	now := requestcontext.Now(ctx)
	expired := 0
	for {
		ids, err := s.store.ListExpiring(ctx, now, expirySweepBatch)
		if err != nil {
			return expired, dErrors.Wrap(err, dErrors.CodeInternal, "failed to find expired documents")
		}
		progressed := 0
		for _, documentID := range ids {
			ok, err := s.expireOne(ctx, documentID, now)
			if err != nil {
				s.logger.ErrorContext(ctx, "failed to expire document",
					"document_id", documentID,
					"error", err,
				)
				continue
			}
			if ok {
				expired++
				progressed++
			}
		}
		if len(ids) < expirySweepBatch || progressed == 0 {
			break
		}
	}

	s.metrics.AddExpired(expired)
	span.SetAttributes(attribute.Int("expired", expired))
	if expired > 0 {
		s.logger.InfoContext(ctx, "expiry sweep completed", "expired", expired)
	}
	return expired, nil
}

func (s *Service) expireOne(ctx context.Context, documentID id.DocumentID, now time.Time) (bool, error) {
	var changed bool
	err := s.tx.RunInTx(ctx, documentID, func(txCtx context.Context) error {
		doc, err := s.load(txCtx, documentID)
		if err != nil {
			return err
		}
		if !doc.IsExpiredAt(now) {
			return nil
		}
		if err := doc.Expire(now); err != nil {
			return err
		}
		if err := s.store.Update(txCtx, doc); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update document")
		}
		if err := s.emit(txCtx, doc, models.SystemActor(), audit.ActionDocumentExpired, ""); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err == nil && changed {
		s.logAudit(ctx, "document_expired",
			"document_id", documentID.String(),
			"status", string(models.StatusExpired),
			"source", string(models.SourceSystem),
		)
	}
	return changed, err
}

// ConfirmByVerifier records a verifier's confirmation of a VERIFIED document.
// The status is unchanged.
func (s *Service) ConfirmByVerifier(ctx context.Context, documentID id.DocumentID, verifierID id.UserID, comments string) (*models.Document, error) {
	var doc *models.Document
	err := s.tx.RunInTx(ctx, documentID, func(txCtx context.Context) error {
		current, err := s.load(txCtx, documentID)
		if err != nil {
			return err
		}
		if current.Status != models.StatusVerified {
			return dErrors.New(dErrors.CodeInvalidTransition, "only verified documents can be confirmed").
				WithDetail("current_status", string(current.Status)).
				WithDetail("document_id", documentID.String())
		}
		actor := models.Actor{ID: verifierID, Source: models.SourceMaker}
		if err := s.emit(txCtx, current, actor, audit.ActionVerifiedByVerifier, comments); err != nil {
			return err
		}
		doc = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "document_confirmed_by_verifier",
		"document_id", documentID.String(),
		"user_id", verifierID.String(),
	)
	return doc, nil
}

// Decisions reported by Status beyond the policy dispositions.
const (
	DecisionPending      = "PENDING"
	DecisionExpired      = "EXPIRED"
	DecisionIdentityHold = "IDENTITY_HOLD"
)

// Messages for resolved states that the policy does not produce.
const (
	MessageAwaitingAnalysis   = "Your document is waiting for analysis."
	MessageVerified           = "Your document has been verified."
	MessageRejectedByReviewer = "A reviewer could not verify your document. Please resubmit a clearer copy."
	MessageExpired            = "Your document has expired. Please submit a new copy."
	MessageIdentityHold       = "Your document is on hold while support confirms your identity."
)

// StatusView is the owner-facing status of a document.
type StatusView struct {
	Document    *models.Document
	Decision    string
	UserMessage string
}

// Status returns the document's status for its owner or for staff.
func (s *Service) Status(ctx context.Context, documentID id.DocumentID, caller requestcontext.Principal) (*StatusView, error) {
	doc, err := s.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != caller.UserID && !caller.Role.IsStaff() {
		return nil, dErrors.New(dErrors.CodeForbidden, "document belongs to another user")
	}
	view := &StatusView{Document: doc}
	view.Decision, view.UserMessage = s.resolve(doc)
	return view, nil
}

// resolve reads the decision from the document's lifecycle first: its
// terminal status, then an identity hold, then the recorded disposition.
// The policy's reading of the report is used only while none of those exist.
func (s *Service) resolve(doc *models.Document) (string, string) {
	switch doc.Status {
	case models.StatusVerified:
		return string(policy.DispositionApproved), MessageVerified
	case models.StatusExpired:
		return DecisionExpired, MessageExpired
	case models.StatusRejected:
		if doc.Report != nil {
			if decision := s.policy.Decide(doc.Report); decision.Disposition == policy.DispositionRejected {
				return string(policy.DispositionRejected), decision.UserMessage
			}
		}
		return string(policy.DispositionRejected), MessageRejectedByReviewer
	}
	if doc.IdentityHold {
		return DecisionIdentityHold, MessageIdentityHold
	}
	if doc.LastDisposition == policy.DispositionReview {
		return string(policy.DispositionReview), policy.MessageReview
	}
	if doc.Report == nil {
		return DecisionPending, MessageAwaitingAnalysis
	}
	decision := s.policy.Decide(doc.Report)
	return string(decision.Disposition), decision.UserMessage
}

func (s *Service) load(ctx context.Context, documentID id.DocumentID) (*models.Document, error) {
	doc, err := s.store.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found").
				WithDetail("document_id", documentID.String())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	return doc, nil
}

// emit appends the audit entry for a transition inside the caller's unit of
// work. A failed write fails the transition.
func (s *Service) emit(ctx context.Context, doc *models.Document, actor models.Actor, action audit.Action, comments string) error {
	metadata := map[string]string{
		"status":        string(doc.Status),
		"document_type": string(doc.Type),
		"source":        string(actor.Source),
	}
	if comments != "" {
		metadata["comments"] = comments
	}
	if doc.Report != nil {
		metadata["analysis_id"] = doc.Report.AnalysisID.String()
	}
	if err := s.auditor.Emit(ctx, audit.Entry{
		ActorID:    actor.ID,
		DocumentID: doc.ID,
		Action:     action,
		Metadata:   metadata,
	}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit entry")
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
	if status := attrs.ExtractString(attributes, "status"); status != "" && status != string(models.StatusPending) {
		s.metrics.IncTransition(status, attrs.ExtractString(attributes, "source"))
	}
}

func subjectOf(doc *models.Document) issuance.Subject {
	var issuedAt time.Time
	if doc.IssuedAt != nil {
		issuedAt = *doc.IssuedAt
	}
	return issuance.Subject{
		DocumentID:   doc.ID,
		OwnerID:      doc.UserID,
		OwnerName:    doc.OwnerName,
		DocumentType: doc.Type,
		FileHash:     doc.FileHash,
		IssuedAt:     issuedAt,
		ExpiresAt:    doc.ExpiresAt,
	}
}

func blockchainOf(kind issuance.Kind) id.BlockchainType {
	if kind == issuance.KindNFTMint {
		return id.BlockchainNFTMetaplex
	}
	return id.BlockchainSASAttestation
}
