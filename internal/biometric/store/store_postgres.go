package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"docgate/internal/biometric"
	id "docgate/pkg/domain"
	"docgate/pkg/platform/sentinel"
	txcontext "docgate/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists identities; hash uniqueness is enforced by
// uq_biometric_identities_hash.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) FindByHash(ctx context.Context, hash string) (*biometric.Identity, error) {
	var (
		identity biometric.Identity
		userID   uuid.UUID
		source   uuid.NullUUID
	)
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT user_id, biometric_hash, feature_count, face_confidence, source_document_id, created_at
		FROM biometric_identities
		WHERE biometric_hash = $1
	`, hash).Scan(&userID, &identity.BiometricHash, &identity.Data.FeatureCount,
		&identity.Data.FaceConfidence, &source, &identity.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find biometric identity by hash: %w", err)
	}
	identity.UserID = id.UserID(userID)
	if source.Valid {
		identity.Data.SourceDocumentID = id.DocumentID(source.UUID)
	}
	return &identity, nil
}

// Save inserts the identity. Conflicts on either the user or the hash are
// absorbed by ON CONFLICT DO NOTHING so an enclosing transaction stays usable;
// the rows that won are then read back to classify the outcome. A hash held by
// another user surfaces as sentinel.ErrConflict.
func (s *PostgresStore) Save(ctx context.Context, identity *biometric.Identity) (biometric.SaveOutcome, error) {
	var source uuid.NullUUID
	if !identity.Data.SourceDocumentID.IsNil() {
		source = uuid.NullUUID{UUID: uuid.UUID(identity.Data.SourceDocumentID), Valid: true}
	}
	exec := s.execer(ctx)
	res, err := exec.ExecContext(ctx, `
		INSERT INTO biometric_identities (user_id, biometric_hash, feature_count, face_confidence, source_document_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`,
		uuid.UUID(identity.UserID),
		identity.BiometricHash,
		identity.Data.FeatureCount,
		identity.Data.FaceConfidence,
		source,
		identity.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, sentinel.ErrConflict
		}
		return 0, fmt.Errorf("insert biometric identity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert biometric identity: %w", err)
	}
	if affected == 1 {
		return biometric.SaveStored, nil
	}
	return s.classifyConflict(ctx, exec, identity)
}

func (s *PostgresStore) classifyConflict(ctx context.Context, exec dbExecutor, identity *biometric.Identity) (biometric.SaveOutcome, error) {
	rows, err := exec.QueryContext(ctx, `
		SELECT user_id, biometric_hash
		FROM biometric_identities
		WHERE user_id = $1 OR biometric_hash = $2
	`, uuid.UUID(identity.UserID), identity.BiometricHash)
	if err != nil {
		return 0, fmt.Errorf("read conflicting biometric identity: %w", err)
	}
	defer rows.Close()

	var (
		heldByOther bool
		userHash    string
		userFound   bool
	)
	for rows.Next() {
		var (
			userID uuid.UUID
			hash   string
		)
		if err := rows.Scan(&userID, &hash); err != nil {
			return 0, fmt.Errorf("scan conflicting biometric identity: %w", err)
		}
		if id.UserID(userID) == identity.UserID {
			userFound = true
			userHash = hash
			continue
		}
		if hash == identity.BiometricHash {
			heldByOther = true
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("read conflicting biometric identity: %w", err)
	}

	switch {
	case heldByOther:
		return 0, sentinel.ErrConflict
	case !userFound:
		return 0, errors.New("biometric identity insert skipped without a conflicting row")
	case userHash != identity.BiometricHash:
		return biometric.SaveUserMismatch, nil
	default:
		return biometric.SaveUnchanged, nil
	}
}
