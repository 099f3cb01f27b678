package service_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"

	"docgate/internal/document/models"
	"docgate/internal/document/service"
	"docgate/internal/issuance"
	"docgate/internal/policy"
	id "docgate/pkg/domain"
	dErrors "docgate/pkg/domain-errors"
	"docgate/pkg/platform/audit/publishers/compliance"
	"docgate/pkg/requestcontext"
)

func (s *LifecycleSuite) deferredDocument(svc *service.Service) *models.Document {
	doc := s.seed(id.UserID(uuid.New()), id.DocumentTypeDiploma, 91)
	s.issuer.EXPECT().Issue(gomock.Any(), gomock.Any()).
		Return(issuance.Receipt{}, dErrors.New(dErrors.CodeTimeout, "relay timed out"))
	out, err := svc.ApplyDisposition(s.ctx, doc.ID, policy.DispositionApproved, models.SystemActor(), "")
	s.Require().NoError(err)
	s.Require().Equal(models.IssuancePending, out.Document.IssuanceStatus)
	return out.Document
}

func (s *LifecycleSuite) TestReconciler_RetriesWhenDue() {
	svc := s.newService(compliance.New(s.audits), service.WithIssuanceRetry(time.Minute, 5))
	doc := s.deferredDocument(svc)

	var backlog int
	reconciler := service.NewReconciler(svc, service.WithBacklogGauge(func(n int) { backlog = n }))

	s.Run("nothing is due before the backoff elapses", func() {
		res, err := reconciler.RunOnce(requestcontext.WithTime(context.Background(), s.now.Add(30*time.Second)))
		s.Require().NoError(err)
		s.Zero(res.Attempted)
		s.Equal(1, backlog)
	})

	s.Run("a due retry records the receipt and clears the queue", func() {
		s.issuer.EXPECT().Issue(gomock.Any(), gomock.Any()).Return(attestationReceipt("att-late"), nil)
		res, err := reconciler.RunOnce(requestcontext.WithTime(context.Background(), s.now.Add(2*time.Minute)))
		s.Require().NoError(err)
		s.Equal(service.ReconcileResult{Attempted: 1, Issued: 1}, res)
		s.Zero(backlog)

		got, err := svc.Get(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal("att-late", got.AttestationID)
		s.Equal(models.IssuanceIssued, got.IssuanceStatus)
		_, queued := s.pending.Get(doc.ID)
		s.False(queued)
	})
}

func (s *LifecycleSuite) TestReconciler_ExhaustedAttemptsMarkFailed() {
	svc := s.newService(compliance.New(s.audits), service.WithIssuanceRetry(time.Second, 2))
	doc := s.deferredDocument(svc)
	reconciler := service.NewReconciler(svc)

	s.issuer.EXPECT().Issue(gomock.Any(), gomock.Any()).
		Return(issuance.Receipt{}, dErrors.New(dErrors.CodeIssuanceFailed, "insufficient fee balance"))
	res, err := reconciler.RunOnce(requestcontext.WithTime(context.Background(), s.now.Add(time.Hour)))
	s.Require().NoError(err)
	s.Equal(1, res.Exhausted)

	p, ok := s.pending.Get(doc.ID)
	s.Require().True(ok)
	s.Equal(issuance.PendingStateFailed, p.State)
	s.Equal(2, p.Attempts)

	got, err := svc.Get(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, got.Status)
	s.Equal(models.IssuanceFailed, got.IssuanceStatus)

	res, err = reconciler.RunOnce(requestcontext.WithTime(context.Background(), s.now.Add(48*time.Hour)))
	s.Require().NoError(err)
	s.Zero(res.Attempted, "failed records are left for an operator")
}

func (s *LifecycleSuite) TestReconciler_DropsIssuedDocuments() {
	svc := s.newService(compliance.New(s.audits))
	doc := s.deferredDocument(svc)
	_, err := svc.RecordIssuance(s.ctx, doc.ID, attestationReceipt("att-manual"))
	s.Require().NoError(err)

	res, err := service.NewReconciler(svc).RunOnce(requestcontext.WithTime(context.Background(), s.now.Add(time.Hour)))
	s.Require().NoError(err)
	s.Equal(1, res.Attempted)
	s.Zero(res.Issued)
	_, queued := s.pending.Get(doc.ID)
	s.False(queued)
}
