// Package biometric enforces that one facial identity maps to at most one user.
package biometric

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"docgate/internal/forensics"
	id "docgate/pkg/domain"
	dErrors "docgate/pkg/domain-errors"
	"docgate/pkg/platform/sentinel"
	"docgate/pkg/requestcontext"
)

// Store persists biometric identities.
//
// Save is first-write-wins: it returns sentinel.ErrConflict when the hash is
// already held by another user. When the user already has an identity nothing
// is written and the outcome says whether the stored hash matched.
type Store interface {
	FindByHash(ctx context.Context, hash string) (*Identity, error)
	Save(ctx context.Context, identity *Identity) (SaveOutcome, error)
}

// Gate is the biometric deduplication gate.
type Gate struct {
	store          Store
	key            []byte
	supportContact string
	logger         *slog.Logger
	metrics        *Metrics
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithSupportContact sets the contact returned with duplicate-identity errors.
func WithSupportContact(contact string) Option {
	return func(g *Gate) { g.supportContact = contact }
}

// NewGate constructs a gate. key must be at most 64 bytes.
func NewGate(store Store, key []byte, opts ...Option) (*Gate, error) {
	if store == nil {
		return nil, errors.New("biometric store is required")
	}
	if len(key) > 64 {
		return nil, errors.New("biometric hash key must be at most 64 bytes")
	}
	g := &Gate{store: store, key: key}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Hash derives the biometric hash for a feature vector.
func (g *Gate) Hash(features []float64) (string, error) {
	return HashFeatures(g.key, features)
}

// CheckForDuplicate reports whether hash belongs to a user other than userID.
func (g *Gate) CheckForDuplicate(ctx context.Context, userID id.UserID, hash string) (Result, error) {
	if hash == "" {
		return Result{}, nil
	}
	existing, err := g.store.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Result{}, nil
		}
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up biometric identity")
	}
	if existing.UserID == userID {
		return Result{}, nil
	}
	return Result{IsDuplicate: true, ExistingOwner: existing.UserID}, nil
}

// StoreBiometricData claims hash for userID. A hash held by another user fails
// with DuplicateIdentity; storing again for the same user succeeds. A user who
// already holds a different hash keeps it and gets SaveUserMismatch.
func (g *Gate) StoreBiometricData(ctx context.Context, userID id.UserID, data Data, hash string) (SaveOutcome, error) {
	if hash == "" {
		return 0, dErrors.New(dErrors.CodeInvariantViolation, "biometric hash is required")
	}
	outcome, err := g.store.Save(ctx, &Identity{
		UserID:        userID,
		BiometricHash: hash,
		Data:          data,
		CreatedAt:     requestcontext.Now(ctx),
	})
	if err == nil {
		if outcome == SaveUserMismatch {
			g.metrics.incChecks(outcome.String())
			if g.logger != nil {
				g.logger.WarnContext(ctx, "biometric identity differs from the one on file",
					"request_id", requestcontext.RequestID(ctx),
					"user_id", userID,
					"source_document_id", data.SourceDocumentID,
					"log_type", "audit",
				)
			}
		}
		return outcome, nil
	}
	if errors.Is(err, sentinel.ErrConflict) {
		res, lookupErr := g.CheckForDuplicate(ctx, userID, hash)
		if lookupErr != nil {
			return 0, lookupErr
		}
		return 0, g.duplicateError(ctx, userID, res.ExistingOwner)
	}
	return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store biometric identity")
}

// Screen runs the gate for a document. It passes without work unless the
// document type carries a facial biometric and the report found a face. When
// claim is true the hash is stored for userID after a clean check.
func (g *Gate) Screen(ctx context.Context, userID id.UserID, docType id.DocumentType, report *forensics.Report, claim bool) (ScreenResult, error) {
	if !docType.HasFacialBiometric() || report == nil || !report.HasFaceImage || len(report.FaceFeatures) == 0 {
		return ScreenResult{Skipped: true}, nil
	}

	hash, err := g.Hash(report.FaceFeatures)
	if err != nil {
		return ScreenResult{}, dErrors.Wrap(err, dErrors.CodeAnalysisFailed, "invalid biometric features")
	}

	res, err := g.CheckForDuplicate(ctx, userID, hash)
	if err != nil {
		return ScreenResult{}, err
	}
	if res.IsDuplicate {
		return ScreenResult{Hash: hash}, g.duplicateError(ctx, userID, res.ExistingOwner)
	}
	if !claim {
		g.metrics.incChecks("clear")
		return ScreenResult{Hash: hash}, nil
	}

	data := Data{
		FeatureCount:     len(report.FaceFeatures),
		FaceConfidence:   report.FaceConfidence,
		SourceDocumentID: report.DocumentID,
	}
	outcome, err := g.StoreBiometricData(ctx, userID, data, hash)
	if err != nil {
		return ScreenResult{Hash: hash}, err
	}
	switch outcome {
	case SaveStored:
		g.metrics.incChecks("stored")
		return ScreenResult{Hash: hash, Stored: true}, nil
	case SaveUserMismatch:
		return ScreenResult{Hash: hash, Mismatch: true}, nil
	default:
		g.metrics.incChecks("clear")
		return ScreenResult{Hash: hash}, nil
	}
}

func (g *Gate) duplicateError(ctx context.Context, userID, existingOwner id.UserID) error {
	g.metrics.incChecks("duplicate")
	if g.logger != nil {
		g.logger.WarnContext(ctx, "biometric identity collision",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID,
			"existing_owner", existingOwner,
			"log_type", "audit",
		)
	}
	return dErrors.New(dErrors.CodeDuplicateIdentity,
		fmt.Sprintf("this identity is already registered to another account; contact %s", g.supportReference())).
		WithDetail("existing_owner", existingOwner.String()).
		WithDetail("support_reference", g.supportReference())
}

func (g *Gate) supportReference() string {
	if g.supportContact == "" {
		return "support"
	}
	return g.supportContact
}
