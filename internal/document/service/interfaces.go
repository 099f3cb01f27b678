package service

import (
	"context"
	"time"

	"docgate/internal/biometric"
	"docgate/internal/document/models"
	"docgate/internal/forensics"
	"docgate/internal/issuance"
	id "docgate/pkg/domain"
	"docgate/pkg/platform/audit"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

// Store persists documents. Writes join the caller's unit of work; inside a
// SQL transaction FindByID locks the row.
type Store interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, documentID id.DocumentID) (*models.Document, error)
	Update(ctx context.Context, doc *models.Document) error
	// ListReviewQueue returns the review queue page, oldest first, and its total size.
	ListReviewQueue(ctx context.Context, skip, take int) ([]*models.Document, int, error)
	// ListExpiring returns VERIFIED documents whose validity ended at or before now.
	ListExpiring(ctx context.Context, now time.Time, limit int) ([]id.DocumentID, error)
	ExistingIDs(ctx context.Context, ids []id.DocumentID) (map[id.DocumentID]bool, error)
}

// StoreTx serialises work on one document and commits its writes together.
type StoreTx interface {
	RunInTx(ctx context.Context, documentID id.DocumentID, fn func(ctx context.Context) error) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, entry audit.Entry) error
}

type BiometricGate interface {
	Screen(ctx context.Context, userID id.UserID, docType id.DocumentType, report *forensics.Report, claim bool) (biometric.ScreenResult, error)
}

// Issuer dispatches on-chain issuance for a verified document.
type Issuer interface {
	Issue(ctx context.Context, req issuance.Request) (issuance.Receipt, error)
}
