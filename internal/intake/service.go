// Package intake runs the upload pipeline: store the bytes, analyse them (or
// reuse a cached report for identical bytes), decide, and hand the decision to
// the document lifecycle.
package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docgate/internal/document/models"
	"docgate/internal/document/service"
	"docgate/internal/forensics"
	"docgate/internal/platform/objectstore"
	"docgate/internal/policy"
	id "docgate/pkg/domain"
	dErrors "docgate/pkg/domain-errors"
	"docgate/pkg/platform/sentinel"
	"docgate/pkg/requestcontext"
)

const (
	defaultMaxUploadBytes  = 10 << 20
	defaultAnalysisTimeout = 3 * time.Minute
	defaultCacheTTL        = 24 * time.Hour
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

// Lifecycle is the subset of the document service intake drives.
type Lifecycle interface {
	Create(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, documentID id.DocumentID) (*models.Document, error)
	SaveReport(ctx context.Context, documentID id.DocumentID, report *forensics.Report) (*models.Document, error)
	ApplyDisposition(ctx context.Context, documentID id.DocumentID, disposition policy.Disposition, actor models.Actor, comments string) (*service.Outcome, error)
}

// Analyzer produces a forensic report for uploaded bytes.
type Analyzer interface {
	Analyze(ctx context.Context, req forensics.AnalysisRequest) (*forensics.Report, error)
}

// ReportCache memoises reports by file hash.
type ReportCache interface {
	Get(ctx context.Context, fileHash string) (*forensics.Report, bool, error)
	Put(ctx context.Context, fileHash string, report *forensics.Report, ttl time.Duration) error
}

type Service struct {
	lifecycle       Lifecycle
	analyzer        Analyzer
	objects         objectstore.Store
	cache           ReportCache
	cacheTTL        time.Duration
	policy          policy.Policy
	policyMetrics   *policy.Metrics
	analysisTimeout time.Duration
	maxUploadBytes  int64
	allowedMime     map[string]bool
	logger          *slog.Logger
	metrics         *Metrics
	tracer          trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// WithPolicy replaces the default decision policy.
func WithPolicy(p policy.Policy, m *policy.Metrics) Option {
	return func(s *Service) {
		s.policy = p
		s.policyMetrics = m
	}
}

// WithCache enables report reuse for identical uploads.
func WithCache(cache ReportCache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithAnalysisTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.analysisTimeout = d
		}
	}
}

// WithUploadLimits sets the maximum upload size and the accepted MIME types.
// An empty list keeps the defaults.
func WithUploadLimits(maxBytes int64, mimeTypes []string) Option {
	return func(s *Service) {
		if maxBytes > 0 {
			s.maxUploadBytes = maxBytes
		}
		if len(mimeTypes) > 0 {
			s.allowedMime = make(map[string]bool, len(mimeTypes))
			for _, m := range mimeTypes {
				s.allowedMime[m] = true
			}
		}
	}
}

func New(lifecycle Lifecycle, analyzer Analyzer, objects objectstore.Store, opts ...Option) *Service {
	s := &Service{
		lifecycle:       lifecycle,
		analyzer:        analyzer,
		objects:         objects,
		cacheTTL:        defaultCacheTTL,
		policy:          policy.Default(),
		analysisTimeout: defaultAnalysisTimeout,
		maxUploadBytes:  defaultMaxUploadBytes,
		allowedMime: map[string]bool{
			"image/jpeg":      true,
			"image/png":       true,
			"application/pdf": true,
		},
		logger: slog.Default(),
		tracer: otel.Tracer("docgate/intake"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxUploadBytes is the configured upload limit, for transports that need to
// bound the request body.
func (s *Service) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// Submit registers an upload as a PENDING document and runs the pipeline on
// it. When analysis fails or times out the document stays PENDING with no
// report and the coded error carries its id so the owner can call Reanalyze.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "intake.Submit", trace.WithAttributes(
		attribute.String("document_type", req.DocumentType),
		attribute.Int("size_bytes", len(req.Data)),
	))
	defer span.End()

	docType, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(req.Data)
	fileHash := hex.EncodeToString(sum[:])
	doc := models.NewDocument(req.Owner.UserID, req.Owner.Name, req.Owner.Email, docType, fileHash, req.MimeType, requestcontext.Now(ctx))
	span.SetAttributes(attribute.String("document_id", doc.ID.String()))

	if err := s.objects.Put(ctx, doc.ObjectKey, req.Data, req.MimeType); err != nil {
		s.metrics.incSubmission("error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store document bytes")
	}
	if err := s.lifecycle.Create(ctx, doc); err != nil {
		s.metrics.incSubmission("error")
		return nil, err
	}
	s.logger.InfoContext(ctx, "document submitted",
		"request_id", requestcontext.RequestID(ctx),
		"document_id", doc.ID,
		"user_id", doc.UserID,
		"document_type", docType,
		"size_bytes", len(req.Data),
	)

	res, err := s.run(ctx, doc, req.Data, req.Options, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	return res, err
}

// Reanalyze re-runs analysis on a PENDING document from its stored bytes. Only
// documents whose earlier analysis failed before a disposition qualify.
// force bypasses the cache. Only the owner or staff may reanalyse.
func (s *Service) Reanalyze(ctx context.Context, caller requestcontext.Principal, documentID id.DocumentID, force bool) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "intake.Reanalyze", trace.WithAttributes(
		attribute.String("document_id", documentID.String()),
		attribute.Bool("force", force),
	))
	defer span.End()

	doc, err := s.lifecycle.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != caller.UserID && !caller.Role.IsStaff() {
		return nil, dErrors.New(dErrors.CodeForbidden, "not allowed to reanalyse this document")
	}
	if doc.Status != models.StatusPending {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "only pending documents can be reanalysed").
			WithDetail("current_status", string(doc.Status)).
			WithDetail("document_id", documentID.String())
	}
	// Once a disposition is recorded the outcome belongs to the review queue
	// or to support, not to another analysis run.
	if doc.LastDisposition != "" || doc.IdentityHold {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "document already has a decision pending resolution").
			WithDetail("last_disposition", string(doc.LastDisposition)).
			WithDetail("identity_hold", strconv.FormatBool(doc.IdentityHold)).
			WithDetail("document_id", documentID.String())
	}

	data, err := s.objects.Get(ctx, doc.ObjectKey)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "stored document bytes are missing").
				WithDetail("document_id", documentID.String())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read document bytes")
	}

	res, err := s.run(ctx, doc, data, forensics.AnalysisOptions{}, force)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	return res, err
}

// run analyses, saves the report, decides, and applies the disposition.
func (s *Service) run(ctx context.Context, doc *models.Document, data []byte, opts forensics.AnalysisOptions, bypassCache bool) (*Result, error) {
	report, cached, err := s.analyze(ctx, doc, data, opts, bypassCache)
	if err != nil {
		s.metrics.incSubmission(string(dErrors.CodeOf(err)))
		if de, ok := dErrors.As(err); ok {
			de.WithDetail("document_id", doc.ID.String())
		}
		s.logger.WarnContext(ctx, "analysis failed; document left pending",
			"request_id", requestcontext.RequestID(ctx),
			"document_id", doc.ID,
			"error", err,
		)
		return nil, err
	}

	if _, err := s.lifecycle.SaveReport(ctx, doc.ID, report); err != nil {
		s.metrics.incSubmission("error")
		return nil, err
	}

	decision := s.policy.Decide(report)
	s.policyMetrics.Observe(decision, policy.AdvisoryAgrees(report, decision))
	s.logger.InfoContext(ctx, "policy decided",
		"request_id", requestcontext.RequestID(ctx),
		"document_id", doc.ID,
		"overall_score", report.OverallScore,
		"tamper_risk", report.TamperRisk,
		"disposition", decision.Disposition,
		"reason", decision.Reason,
		"cached_report", cached,
	)

	outcome, err := s.lifecycle.ApplyDisposition(ctx, doc.ID, decision.Disposition, models.SystemActor(), "")
	if err != nil {
		s.metrics.incSubmission(string(dErrors.CodeOf(err)))
		if de, ok := dErrors.As(err); ok {
			de.WithDetail("document_id", doc.ID.String())
		}
		return nil, err
	}
	s.metrics.incSubmission(outcomeLabel(decision.Disposition))

	return &Result{
		Document:        outcome.Document,
		Decision:        decision,
		Cached:          cached,
		Receipt:         outcome.Receipt,
		IssuanceWarning: outcome.IssuanceWarning,
	}, nil
}

// analyze returns a report for data, from the cache when the same bytes were
// analysed before. Cached reports are rebound to doc.
func (s *Service) analyze(ctx context.Context, doc *models.Document, data []byte, opts forensics.AnalysisOptions, bypassCache bool) (*forensics.Report, bool, error) {
	if s.cache != nil && !bypassCache {
		report, ok, err := s.cache.Get(ctx, doc.FileHash)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "forensic cache lookup failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		case ok:
			s.metrics.incCacheLookup("hit")
			report.DocumentID = doc.ID
			return report, true, nil
		default:
			s.metrics.incCacheLookup("miss")
		}
	} else if s.cache != nil {
		s.metrics.incCacheLookup("bypass")
	}

	actx, cancel := context.WithTimeout(ctx, s.analysisTimeout)
	defer cancel()

	start := time.Now()
	report, err := s.analyzer.Analyze(actx, forensics.AnalysisRequest{
		DocumentID:   doc.ID,
		FileBytes:    data,
		MimeType:     doc.MimeType,
		DocumentType: doc.Type,
		Options:      opts,
	})
	if err != nil {
		err = classify(actx, err, s.analysisTimeout)
		s.metrics.observeAnalysis(start, string(dErrors.CodeOf(err)))
		return nil, false, err
	}
	if err := report.Validate(); err != nil {
		s.metrics.observeAnalysis(start, string(dErrors.CodeAnalysisFailed))
		return nil, false, err
	}
	s.metrics.observeAnalysis(start, "ok")

	report = report.Clone()
	report.DocumentID = doc.ID
	if report.AnalysisID.IsNil() {
		report.AnalysisID = id.NewAnalysisID()
	}
	if report.AnalyzedAt.IsZero() {
		report.AnalyzedAt = requestcontext.Now(ctx)
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, doc.FileHash, report, s.cacheTTL); err != nil {
			s.logger.WarnContext(ctx, "forensic cache write failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}
	return report, false, nil
}

// classify keeps coded errors and maps bare deadline errors to Timeout.
func classify(ctx context.Context, err error, timeout time.Duration) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "analysis did not finish within "+timeout.String())
	}
	return dErrors.Wrap(err, dErrors.CodeAnalysisFailed, "analysis failed")
}

func (s *Service) validate(req SubmitRequest) (id.DocumentType, error) {
	if req.Owner.UserID.IsNil() {
		return "", dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	docType, err := id.ParseDocumentType(req.DocumentType)
	if err != nil {
		return "", dErrors.New(dErrors.CodeValidation, "unsupported document type").
			WithDetail("field", "type")
	}
	if !s.allowedMime[req.MimeType] {
		return "", dErrors.New(dErrors.CodeValidation, "unsupported file type "+strconv.Quote(req.MimeType)).
			WithDetail("field", "file")
	}
	switch size := int64(len(req.Data)); {
	case size == 0:
		return "", dErrors.New(dErrors.CodeValidation, "file is empty").WithDetail("field", "file")
	case size > s.maxUploadBytes:
		return "", dErrors.New(dErrors.CodeValidation, "file exceeds the upload limit").
			WithDetail("field", "file").
			WithDetail("max_bytes", strconv.FormatInt(s.maxUploadBytes, 10))
	}
	return docType, nil
}

func outcomeLabel(d policy.Disposition) string {
	switch d {
	case policy.DispositionApproved:
		return "approved"
	case policy.DispositionReview:
		return "review"
	default:
		return "rejected"
	}
}
