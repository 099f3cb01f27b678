package intake_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"docgate/internal/biometric"
	biostore "docgate/internal/biometric/store"
	"docgate/internal/document/models"
	docservice "docgate/internal/document/service"
	docmocks "docgate/internal/document/service/mocks"
	docstore "docgate/internal/document/store"
	"docgate/internal/forensiccache"
	"docgate/internal/forensics"
	"docgate/internal/intake"
	"docgate/internal/intake/mocks"
	"docgate/internal/issuance"
	issuancestore "docgate/internal/issuance/store"
	"docgate/internal/platform/objectstore"
	"docgate/internal/policy"
	id "docgate/pkg/domain"
	dErrors "docgate/pkg/domain-errors"
	"docgate/pkg/platform/audit"
	"docgate/pkg/platform/audit/publishers/compliance"
	auditmemory "docgate/pkg/platform/audit/store/memory"
	"docgate/pkg/requestcontext"
)

// =============================================================================
// Intake Pipeline Test Suite
// =============================================================================
// The pipeline runs against the real lifecycle manager on in-memory stores;
// only the analysis and issuance collaborators are mocked.

type IntakeSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	analyzer  *mocks.MockAnalyzer
	issuer    *docmocks.MockIssuer
	docs      *docstore.InMemoryStore
	audits    *auditmemory.InMemoryStore
	objects   *objectstore.Memory
	cache     *forensiccache.MemoryStore
	lifecycle *docservice.Service
	service   *intake.Service
	owner     requestcontext.Principal
	ctx       context.Context
}

func TestIntakeSuite(t *testing.T) {
	suite.Run(t, new(IntakeSuite))
}

func (s *IntakeSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.analyzer = mocks.NewMockAnalyzer(s.ctrl)
	s.issuer = docmocks.NewMockIssuer(s.ctrl)
	s.docs = docstore.NewInMemory()
	s.audits = auditmemory.NewInMemoryStore()
	s.objects = objectstore.NewMemory()
	s.cache = forensiccache.NewMemoryStore()

	gate, err := biometric.NewGate(biostore.NewInMemory(), []byte("intake-test"))
	s.Require().NoError(err)
	s.lifecycle = docservice.New(s.docs, docservice.NewShardedStoreTx(time.Second), compliance.New(s.audits),
		gate, s.issuer, issuancestore.NewInMemory())
	s.service = intake.New(s.lifecycle, s.analyzer, s.objects,
		intake.WithCache(s.cache, time.Hour),
		intake.WithAnalysisTimeout(50*time.Millisecond),
		intake.WithUploadLimits(1024, []string{"image/png", "application/pdf"}),
	)
	s.owner = requestcontext.Principal{UserID: id.UserID(uuid.New()), Role: id.RoleCitizen, Name: "Lea Santos", Email: "lea@example.com"}
	s.ctx = context.Background()
}

func (s *IntakeSuite) submit(docType string, data []byte) (*intake.Result, error) {
	return s.service.Submit(s.ctx, intake.SubmitRequest{
		Owner:        s.owner,
		DocumentType: docType,
		MimeType:     "image/png",
		Data:         data,
	})
}

func scored(score int) *forensics.Report {
	return &forensics.Report{
		OverallScore:      score,
		Scores:            forensics.Scores{Integrity: score, Authenticity: score},
		TamperRisk:        forensics.TamperRiskLow,
		RecommendedAction: "REVIEW",
	}
}

func (s *IntakeSuite) onlyDocument() *models.Document {
	page, total, err := s.docs.ListReviewQueue(s.ctx, 0, 10)
	s.Require().NoError(err)
	s.Require().Equal(1, total)
	return page[0]
}

func (s *IntakeSuite) TestSubmit_HighScoreIsVerifiedAndIssued() {
	s.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req forensics.AnalysisRequest) (*forensics.Report, error) {
			s.Equal(id.DocumentTypeDiploma, req.DocumentType)
			s.Equal("image/png", req.MimeType)
			return scored(90), nil
		})
	s.issuer.EXPECT().Issue(gomock.Any(), gomock.AssignableToTypeOf(issuance.Attestation{})).
		Return(issuance.Receipt{Kind: issuance.KindAttestation, ReferenceID: "att-9"}, nil)

	res, err := s.submit("DIPLOMA", []byte("diploma-bytes"))
	s.Require().NoError(err)

	s.Equal(policy.DispositionApproved, res.Decision.Disposition)
	s.Equal(models.StatusVerified, res.Document.Status)
	s.Equal("att-9", res.Document.AttestationID)
	s.False(res.Cached)
	s.Require().NotNil(res.Receipt)

	stored, err := s.objects.Get(s.ctx, res.Document.ObjectKey)
	s.Require().NoError(err)
	s.Equal([]byte("diploma-bytes"), stored)

	entries, err := s.audits.ListByDocument(s.ctx, res.Document.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionVerifiedBySystem, entries[0].Action)
}

func (s *IntakeSuite) TestSubmit_MidScoreWaitsForReview() {
	s.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(scored(75), nil)

	res, err := s.submit("BIRTH_CERTIFICATE", []byte("certificate"))
	s.Require().NoError(err)

	s.Equal(policy.DispositionReview, res.Decision.Disposition)
	s.Equal(models.StatusPending, res.Document.Status)
	s.Equal(res.Document.ID, s.onlyDocument().ID)
}

func (s *IntakeSuite) TestSubmit_IdenticalBytesReuseCachedReport() {
	s.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(scored(60), nil).Times(1)

	first, err := s.submit("DIPLOMA", []byte("same-bytes"))
	s.Require().NoError(err)
	second, err := s.submit("DIPLOMA", []byte("same-bytes"))
	s.Require().NoError(err)

	s.True(second.Cached)
	s.NotEqual(first.Document.ID, second.Document.ID)
	s.Equal(second.Document.ID, second.Document.Report.DocumentID, "cached reports are rebound to the new document")
	s.Equal(models.StatusRejected, second.Document.Status)

	stats, err := s.cache.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), stats.Hits)
}

func (s *IntakeSuite) TestSubmit_AnalysisTimeoutLeavesDocumentPending() {
	s.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ forensics.AnalysisRequest) (*forensics.Report, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	_, err := s.submit("DIPLOMA", []byte("slow"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))

	de, ok := dErrors.As(err)
	s.Require().True(ok)
	docID, perr := id.ParseDocumentID(de.Details["document_id"])
	s.Require().NoError(perr)

	doc, err := s.lifecycle.Get(s.ctx, docID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, doc.Status)
	s.Nil(doc.Report)
	s.Empty(s.entriesFor(docID))
}

func (s *IntakeSuite) TestSubmit_AnalysisFailureIsDistinct() {
	s.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(nil, errors.New("upstream 500"))

	_, err := s.submit("DIPLOMA", []byte("broken"))
	s.True(dErrors.HasCode(err, dErrors.CodeAnalysisFailed))
	s.False(dErrors.HasCode(err, dErrors.CodeTimeout))
}

func (s *IntakeSuite) TestSubmit_OutOfRangeReportIsRejectedAsAnalysisFailure() {
	s.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(scored(140), nil)

	_, err := s.submit("DIPLOMA", []byte("odd"))
	s.True(dErrors.HasCode(err, dErrors.CodeAnalysisFailed))
}

func (s *IntakeSuite) TestSubmit_ValidationHappensBeforeAnyWrite() {
	ctrl := gomock.NewController(s.T())
	lifecycle := mocks.NewMockLifecycle(ctrl)
	svc := intake.New(lifecycle, s.analyzer, s.objects, intake.WithUploadLimits(8, []string{"image/png"}))

	cases := []struct {
		name string
		req  intake.SubmitRequest
		code dErrors.Code
	}{
		{"anonymous", intake.SubmitRequest{DocumentType: "PASSPORT", MimeType: "image/png", Data: []byte("x")}, dErrors.CodeUnauthorized},
		{"unknown type", intake.SubmitRequest{Owner: s.owner, DocumentType: "LIBRARY_CARD", MimeType: "image/png", Data: []byte("x")}, dErrors.CodeValidation},
		{"unsupported mime", intake.SubmitRequest{Owner: s.owner, DocumentType: "PASSPORT", MimeType: "image/gif", Data: []byte("x")}, dErrors.CodeValidation},
		{"empty", intake.SubmitRequest{Owner: s.owner, DocumentType: "PASSPORT", MimeType: "image/png"}, dErrors.CodeValidation},
		{"oversized", intake.SubmitRequest{Owner: s.owner, DocumentType: "PASSPORT", MimeType: "image/png", Data: []byte("123456789")}, dErrors.CodeValidation},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := svc.Submit(s.ctx, tc.req)
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func (s *IntakeSuite) TestReanalyze() {
	s.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(nil, errors.New("upstream 503"))
	_, err := s.submit("DIPLOMA", []byte("retry-me"))
	s.Require().Error(err)
	de, _ := dErrors.As(err)
	docID, err := id.ParseDocumentID(de.Details["document_id"])
	s.Require().NoError(err)

	s.Run("other citizens are forbidden", func() {
		stranger := requestcontext.Principal{UserID: id.UserID(uuid.New()), Role: id.RoleCitizen}
		_, err := s.service.Reanalyze(s.ctx, stranger, docID, false)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("owner reanalyses from stored bytes", func() {
		s.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req forensics.AnalysisRequest) (*forensics.Report, error) {
				s.Equal([]byte("retry-me"), req.FileBytes)
				return scored(40), nil
			})
		res, err := s.service.Reanalyze(s.ctx, s.owner, docID, true)
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, res.Document.Status)
	})

	s.Run("decided documents cannot be reanalysed", func() {
		_, err := s.service.Reanalyze(s.ctx, s.owner, docID, true)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func (s *IntakeSuite) TestReanalyze_CannotBypassHumanReview() {
	s.analyzer.EXPECT().Analyze(gomock.Any(), gomock.Any()).Return(scored(75), nil).Times(1)

	res, err := s.submit("DIPLOMA", []byte("borderline"))
	s.Require().NoError(err)
	s.Require().Equal(policy.DispositionReview, res.Decision.Disposition)
	docID := res.Document.ID

	for _, caller := range []requestcontext.Principal{
		s.owner,
		{UserID: id.UserID(uuid.New()), Role: id.RoleMaker},
	} {
		_, err = s.service.Reanalyze(s.ctx, caller, docID, true)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition), "role %s: got %v", caller.Role, err)
	}

	doc := s.onlyDocument()
	s.Equal(docID, doc.ID)
	s.Equal(models.StatusPending, doc.Status)
	s.Equal(policy.DispositionReview, doc.LastDisposition)
	s.Empty(s.entriesFor(docID))
}

func (s *IntakeSuite) entriesFor(docID id.DocumentID) []audit.Entry {
	entries, err := s.audits.ListByDocument(s.ctx, docID)
	s.Require().NoError(err)
	return entries
}
