package service_test

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
	"docgate/internal/document/service"
	"docgate/internal/document/service/mocks"
	docstore "docgate/internal/document/store"
	"docgate/internal/forensics"
	"docgate/internal/issuance"
	issuancestore "docgate/internal/issuance/store"
	"docgate/internal/policy"
	id "docgate/pkg/domain"
	dErrors "docgate/pkg/domain-errors"
	"docgate/pkg/platform/audit"
	"docgate/pkg/platform/audit/publishers/compliance"
	auditmemory "docgate/pkg/platform/audit/store/memory"
	"docgate/pkg/requestcontext"
)

// =============================================================================
// Lifecycle Service Test Suite
// =============================================================================
// Justification for unit tests: the lifecycle manager couples the state
// machine, the audit trail, the biometric gate and issuance. The in-memory
// stores let each contract be checked without a database.

type LifecycleSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	issuer  *mocks.MockIssuer
	docs    *docstore.InMemoryStore
	audits  *auditmemory.InMemoryStore
	pending *issuancestore.InMemoryStore
	service *service.Service
	now     time.Time
	ctx     context.Context
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}

func (s *LifecycleSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.issuer = mocks.NewMockIssuer(s.ctrl)
	s.docs = docstore.NewInMemory()
	s.audits = auditmemory.NewInMemoryStore()
	s.pending = issuancestore.NewInMemory()
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.service = s.newService(compliance.New(s.audits))
}

func (s *LifecycleSuite) newService(auditor service.AuditPublisher, opts ...service.Option) *service.Service {
	gate, err := biometric.NewGate(biostore.NewInMemory(), []byte("test-key"))
	s.Require().NoError(err)
	return service.New(s.docs, service.NewShardedStoreTx(time.Second), auditor, gate, s.issuer, s.pending, opts...)
}

func (s *LifecycleSuite) seed(owner id.UserID, docType id.DocumentType, score int, features ...float64) *models.Document {
	doc := models.NewDocument(owner, "Ana Cruz", "ana@example.com", docType, uuid.NewString(), "image/png", s.now)
	s.Require().NoError(s.service.Create(s.ctx, doc))
	report := &forensics.Report{
		DocumentID:   doc.ID,
		AnalysisID:   id.NewAnalysisID(),
		OverallScore: score,
		TamperRisk:   forensics.TamperRiskLow,
		HasFaceImage: len(features) > 0,
		FaceFeatures: features,
		AnalyzedAt:   s.now,
	}
	saved, err := s.service.SaveReport(s.ctx, doc.ID, report)
	s.Require().NoError(err)
	return saved
}

func (s *LifecycleSuite) entries(documentID id.DocumentID) []audit.Entry {
	entries, err := s.audits.ListByDocument(s.ctx, documentID)
	s.Require().NoError(err)
	return entries
}

func attestationReceipt(ref string) issuance.Receipt {
	return issuance.Receipt{Kind: issuance.KindAttestation, ReferenceID: ref, TransactionRef: "tx-" + ref}
}

// =============================================================================
// Scenario Tests
// =============================================================================

func (s *LifecycleSuite) TestScenario_HighScoreIsVerifiedAndIssued() {
	owner := id.UserID(uuid.New())
	doc := s.seed(owner, id.DocumentTypePassport, 90, 0.2, 0.4, 0.6)
	decision := policy.Decide(doc.Report)
	s.Require().Equal(policy.DispositionApproved, decision.Disposition)

	s.issuer.EXPECT().Issue(gomock.Any(), gomock.AssignableToTypeOf(issuance.Attestation{})).
		DoAndReturn(func(_ context.Context, req issuance.Request) (issuance.Receipt, error) {
			s.Equal(doc.ID, req.Document())
			return attestationReceipt("att-1"), nil
		})

	out, err := s.service.ApplyDisposition(s.ctx, doc.ID, decision.Disposition, models.SystemActor(), "")
	s.Require().NoError(err)

	s.Equal(models.StatusVerified, out.Document.Status)
	s.Equal("att-1", out.Document.AttestationID)
	s.Empty(out.Document.NFTMintAddress)
	s.Equal(models.IssuanceIssued, out.Document.IssuanceStatus)
	s.Require().NotNil(out.Receipt)
	s.Empty(out.IssuanceWarning)
	s.Require().NotNil(out.Document.IssuedAt)
	s.Require().NotNil(out.Document.ExpiresAt)
	s.True(out.Document.ExpiresAt.After(s.now))

	entries := s.entries(doc.ID)
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionVerifiedBySystem, entries[0].Action)
	s.Equal(id.SystemUserID, entries[0].ActorID)
}

func (s *LifecycleSuite) TestScenario_LandTitleIsMinted() {
	doc := s.seed(id.UserID(uuid.New()), id.DocumentTypeLandTitle, 95)
	s.issuer.EXPECT().Issue(gomock.Any(), gomock.AssignableToTypeOf(issuance.NFTMint{})).
		Return(issuance.Receipt{Kind: issuance.KindNFTMint, ReferenceID: "mint-1"}, nil)

	out, err := s.service.ApplyDisposition(s.ctx, doc.ID, policy.DispositionApproved, models.SystemActor(), "")
	s.Require().NoError(err)
	s.Equal("mint-1", out.Document.NFTMintAddress)
	s.Empty(out.Document.AttestationID)
	s.Nil(out.Document.ExpiresAt, "land titles never expire")
}

func (s *LifecycleSuite) TestScenario_MidScoreGoesToReviewQueue() {
	doc := s.seed(id.UserID(uuid.New()), id.DocumentTypeNationalID, 75, 0.3, 0.3)
	decision := policy.Decide(doc.Report)
	s.Require().Equal(policy.DispositionReview, decision.Disposition)

	out, err := s.service.ApplyDisposition(s.ctx, doc.ID, decision.Disposition, models.SystemActor(), "")
	s.Require().NoError(err)
	s.Equal(models.StatusPending, out.Document.Status)
	s.Equal(policy.DispositionReview, out.Document.LastDisposition)

	queue, total, err := s.docs.ListReviewQueue(s.ctx, 0, 10)
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal(doc.ID, queue[0].ID)
	s.Empty(s.entries(doc.ID), "routing to review is not a transition")
}

func (s *LifecycleSuite) TestScenario_MakerRejectsWithComments() {
	maker := id.UserID(uuid.New())
	doc := s.seed(id.UserID(uuid.New()), id.DocumentTypeDiploma, 72)
	_, err := s.service.ApplyDisposition(s.ctx, doc.ID, policy.DispositionReview, models.SystemActor(), "")
	s.Require().NoError(err)

	out, err := s.service.ApplyDisposition(s.ctx, doc.ID, policy.DispositionRejected, models.MakerActor(maker), "seal is illegible")
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, out.Document.Status)

	entries := s.entries(doc.ID)
	s.Require().Len(entries, 1)
	s.Equal(audit.ActionRejectedByMaker, entries[0].Action)
	s.Equal(maker, entries[0].ActorID)
	s.Equal("seal is illegible", entries[0].Metadata["comments"])

	_, total, err := s.docs.ListReviewQueue(s.ctx, 0, 10)
	s.Require().NoError(err)
	s.Zero(total)
}

// =============================================================================
// Transition Contract Tests
// =============================================================================

func (s *LifecycleSuite) TestInvalidTransitionWritesNoAudit() {
	doc := s.seed(id.UserID(uuid.New()), id.DocumentTypeDiploma, 40)
	_, err := s.service.ApplyDisposition(s.ctx, doc.ID, policy.DispositionRejected, models.SystemActor(), "")
	s.Require().NoError(err)

	for _, disposition := range []policy.Disposition{policy.DispositionApproved, policy.DispositionRejected, policy.DispositionReview} {
		s.Run(string(disposition), func() {
			_, err := s.service.ApplyDisposition(s.ctx, doc.ID, disposition, models.MakerActor(id.UserID(uuid.New())), "")
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
			de, ok := dErrors.As(err)
			s.Require().True(ok)
			s.Equal(string(models.StatusRejected), de.Details["current_status"])
		})
	}
	s.Len(s.entries(doc.ID), 1)
}

func (s *LifecycleSuite) TestUnknownDocument() {
	_, err := s.service.ApplyDisposition(s.ctx, id.NewDocumentID(), policy.DispositionApproved, models.SystemActor(), "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *LifecycleSuite) TestAuditFailureFailsTransition() {
	auditor := mocks.NewMockAuditPublisher(s.ctrl)
	auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
	svc := s.newService(auditor)
	doc := s.seed(id.UserID(uuid.New()), id.DocumentTypeDiploma, 30)

	_, err := svc.ApplyDisposition(s.ctx, doc.ID, policy.DispositionRejected, models.SystemActor(), "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	got, err := s.service.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status, "document update is discarded with the audit entry")
}

func (s *LifecycleSuite) TestIssuanceFailureKeepsVerification() {
	doc := s.seed(id.UserID(uuid.New()), id.DocumentTypeBirthCertificate, 88)
	s.issuer.EXPECT().Issue(gomock.Any(), gomock.Any()).
		Return(issuance.Receipt{}, dErrors.New(dErrors.CodeIssuanceFailed, "relay unavailable"))

	out, err := s.service.ApplyDisposition(s.ctx, doc.ID, policy.DispositionApproved, models.SystemActor(), "")
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, out.Document.Status)
	s.Equal(models.IssuancePending, out.Document.IssuanceStatus)
	s.Contains(out.IssuanceWarning, string(dErrors.CodeIssuanceFailed))
	s.Nil(out.Receipt)

	p, ok := s.pending.Get(doc.ID)
	s.Require().True(ok)
	s.Equal(1, p.Attempts)
	s.Equal(issuance.PendingStateQueued, p.State)
	s.True(p.NextAttemptAt.After(s.now))
	s.Len(s.entries(doc.ID), 1)
}

func (s *LifecycleSuite) TestRecordIssuanceTwiceConflicts() {
	doc := s.seed(id.UserID(uuid.New()), id.DocumentTypeDiploma, 99)
	s.issuer.EXPECT().Issue(gomock.Any(), gomock.Any()).Return(attestationReceipt("att-9"), nil)
	_, err := s.service.ApplyDisposition(s.ctx, doc.ID, policy.DispositionApproved, models.SystemActor(), "")
	s.Require().NoError(err)

	_, err = s.service.RecordIssuance(s.ctx, doc.ID, attestationReceipt("att-10"))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	got, err := s.service.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal("att-9", got.AttestationID)
}

// =============================================================================
// Biometric Gate Tests
// =============================================================================

func (s *LifecycleSuite) TestDuplicateIdentityPlacesHold() {
	alice := id.UserID(uuid.New())
	bob := id.UserID(uuid.New())
	face := []float64{0.12, 0.56, 0.91}

	first := s.seed(alice, id.DocumentTypePassport, 92, face...)
	s.issuer.EXPECT().Issue(gomock.Any(), gomock.Any()).Return(attestationReceipt("att-a"), nil)
	_, err := s.service.ApplyDisposition(s.ctx, first.ID, policy.DispositionApproved, models.SystemActor(), "")
	s.Require().NoError(err)

	second := s.seed(bob, id.DocumentTypeDriversLicense, 93, face...)
	_, err = s.service.ApplyDisposition(s.ctx, second.ID, policy.DispositionApproved, models.SystemActor(), "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateIdentity))

	got, err := s.service.Get(s.ctx, second.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status)
	s.True(got.IdentityHold)
	s.False(got.InReviewQueue())
	s.Empty(s.entries(second.ID))
}

func (s *LifecycleSuite) TestReviewChecksWithoutClaiming() {
	alice := id.UserID(uuid.New())
	bob := id.UserID(uuid.New())
	face := []float64{0.3, 0.6, 0.9}

	reviewed := s.seed(alice, id.DocumentTypeNationalID, 78, face...)
	_, err := s.service.ApplyDisposition(s.ctx, reviewed.ID, policy.DispositionReview, models.SystemActor(), "")
	s.Require().NoError(err)

	other := s.seed(bob, id.DocumentTypeNationalID, 95, face...)
	s.issuer.EXPECT().Issue(gomock.Any(), gomock.Any()).Return(attestationReceipt("att-b"), nil)
	out, err := s.service.ApplyDisposition(s.ctx, other.ID, policy.DispositionApproved, models.SystemActor(), "")
	s.Require().NoError(err, "a review check does not claim the identity")
	s.Equal(models.StatusVerified, out.Document.Status)
}

// =============================================================================
// Expiry Sweep Tests
// =============================================================================

func (s *LifecycleSuite) TestExpireDueIsIdempotent() {
	doc := s.seed(id.UserID(uuid.New()), id.DocumentTypeBusinessPermit, 90)
	s.issuer.EXPECT().Issue(gomock.Any(), gomock.Any()).Return(attestationReceipt("att-p"), nil)
	out, err := s.service.ApplyDisposition(s.ctx, doc.ID, policy.DispositionApproved, models.SystemActor(), "")
	s.Require().NoError(err)

	early := requestcontext.WithTime(context.Background(), out.Document.ExpiresAt.Add(-time.Hour))
	n, err := s.service.ExpireDue(early)
	s.Require().NoError(err)
	s.Zero(n)

	late := requestcontext.WithTime(context.Background(), out.Document.ExpiresAt.Add(time.Hour))
	n, err = s.service.ExpireDue(late)
	s.Require().NoError(err)
	s.Equal(1, n)

	n, err = s.service.ExpireDue(late)
	s.Require().NoError(err)
	s.Zero(n)

	got, err := s.service.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, got.Status)

	entries := s.entries(doc.ID)
	s.Require().Len(entries, 2)
	s.Equal(audit.ActionDocumentExpired, entries[1].Action)
	s.Equal(id.SystemUserID, entries[1].ActorID)
}

// =============================================================================
// Verifier And Status Tests
// =============================================================================

func (s *LifecycleSuite) TestConfirmByVerifier() {
	verifier := id.UserID(uuid.New())
	pending := s.seed(id.UserID(uuid.New()), id.DocumentTypeDiploma, 75)

	_, err := s.service.ConfirmByVerifier(s.ctx, pending.ID, verifier, "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	s.issuer.EXPECT().Issue(gomock.Any(), gomock.Any()).Return(attestationReceipt("att-v"), nil)
	_, err = s.service.ApplyDisposition(s.ctx, pending.ID, policy.DispositionApproved, models.SystemActor(), "")
	s.Require().NoError(err)

	doc, err := s.service.ConfirmByVerifier(s.ctx, pending.ID, verifier, "matches registry")
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, doc.Status)

	entries := s.entries(pending.ID)
	s.Require().Len(entries, 2)
	s.Equal(audit.ActionVerifiedByVerifier, entries[1].Action)
	s.Equal(verifier, entries[1].ActorID)
}

func (s *LifecycleSuite) TestStatus() {
	owner := id.UserID(uuid.New())
	doc := s.seed(owner, id.DocumentTypeDiploma, 75)

	s.Run("owner sees the policy reading before any disposition", func() {
		view, err := s.service.Status(s.ctx, doc.ID, requestcontext.Principal{UserID: owner, Role: id.RoleCitizen})
		s.Require().NoError(err)
		s.Equal(string(policy.DispositionReview), view.Decision)
		s.Equal(policy.MessageReview, view.UserMessage)
	})

	s.Run("staff may read any document", func() {
		_, err := s.service.Status(s.ctx, doc.ID, requestcontext.Principal{UserID: id.UserID(uuid.New()), Role: id.RoleMaker})
		s.NoError(err)
	})

	s.Run("other citizens are forbidden", func() {
		_, err := s.service.Status(s.ctx, doc.ID, requestcontext.Principal{UserID: id.UserID(uuid.New()), Role: id.RoleCitizen})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *LifecycleSuite) TestStatus_FollowsLifecycleOverScore() {
	s.Run("maker rejection of a review-band score reads REJECTED", func() {
		owner := id.UserID(uuid.New())
		doc := s.seed(owner, id.DocumentTypeDiploma, 75)
		_, err := s.service.ApplyDisposition(s.ctx, doc.ID, policy.DispositionReview, models.SystemActor(), "")
		s.Require().NoError(err)
		_, err = s.service.ApplyDisposition(s.ctx, doc.ID, policy.DispositionRejected, models.MakerActor(id.UserID(uuid.New())), "seal is illegible")
		s.Require().NoError(err)

		view, err := s.service.Status(s.ctx, doc.ID, requestcontext.Principal{UserID: owner, Role: id.RoleCitizen})
		s.Require().NoError(err)
		s.Equal(string(policy.DispositionRejected), view.Decision)
		s.Equal(service.MessageRejectedByReviewer, view.UserMessage)
	})

	s.Run("policy rejection keeps the policy message", func() {
		owner := id.UserID(uuid.New())
		doc := s.seed(owner, id.DocumentTypeDiploma, 40)
		_, err := s.service.ApplyDisposition(s.ctx, doc.ID, policy.DispositionRejected, models.SystemActor(), "")
		s.Require().NoError(err)

		view, err := s.service.Status(s.ctx, doc.ID, requestcontext.Principal{UserID: owner, Role: id.RoleCitizen})
		s.Require().NoError(err)
		s.Equal(string(policy.DispositionRejected), view.Decision)
		s.Equal(policy.MessageRejected, view.UserMessage)
	})

	s.Run("high score on identity hold is not reported as approved", func() {
		face := []float64{0.31, 0.44, 0.87}
		first := s.seed(id.UserID(uuid.New()), id.DocumentTypePassport, 92, face...)
		s.issuer.EXPECT().Issue(gomock.Any(), gomock.Any()).Return(attestationReceipt("att-h"), nil)
		_, err := s.service.ApplyDisposition(s.ctx, first.ID, policy.DispositionApproved, models.SystemActor(), "")
		s.Require().NoError(err)

		owner := id.UserID(uuid.New())
		held := s.seed(owner, id.DocumentTypeDriversLicense, 90, face...)
		_, err = s.service.ApplyDisposition(s.ctx, held.ID, policy.DispositionApproved, models.SystemActor(), "")
		s.Require().True(dErrors.HasCode(err, dErrors.CodeDuplicateIdentity))

		view, err := s.service.Status(s.ctx, held.ID, requestcontext.Principal{UserID: owner, Role: id.RoleCitizen})
		s.Require().NoError(err)
		s.Equal(service.DecisionIdentityHold, view.Decision)
		s.Equal(service.MessageIdentityHold, view.UserMessage)
	})

	s.Run("verified document reads APPROVED", func() {
		owner := id.UserID(uuid.New())
		doc := s.seed(owner, id.DocumentTypeDiploma, 88)
		s.issuer.EXPECT().Issue(gomock.Any(), gomock.Any()).Return(attestationReceipt("att-s"), nil)
		_, err := s.service.ApplyDisposition(s.ctx, doc.ID, policy.DispositionApproved, models.SystemActor(), "")
		s.Require().NoError(err)

		view, err := s.service.Status(s.ctx, doc.ID, requestcontext.Principal{UserID: owner, Role: id.RoleCitizen})
		s.Require().NoError(err)
		s.Equal(string(policy.DispositionApproved), view.Decision)
		s.Equal(service.MessageVerified, view.UserMessage)
	})

	s.Run("unanalysed document is pending", func() {
		owner := id.UserID(uuid.New())
		doc := models.NewDocument(owner, "Ana Cruz", "ana@example.com", id.DocumentTypeDiploma, uuid.NewString(), "image/png", s.now)
		s.Require().NoError(s.service.Create(s.ctx, doc))

		view, err := s.service.Status(s.ctx, doc.ID, requestcontext.Principal{UserID: owner, Role: id.RoleCitizen})
		s.Require().NoError(err)
		s.Equal(service.DecisionPending, view.Decision)
		s.Equal(service.MessageAwaitingAnalysis, view.UserMessage)
	})
}
