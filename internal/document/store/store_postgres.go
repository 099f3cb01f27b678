package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"docgate/internal/document/models"
	"docgate/internal/forensics"
	"docgate/internal/policy"
	id "docgate/pkg/domain"
	"docgate/pkg/platform/sentinel"
	txcontext "docgate/pkg/platform/tx"
)

// PostgresStore persists documents in the documents table. Inside a
// transaction FindByID takes a row lock so transitions on one document are
// serialised.
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

const documentColumns = `id, user_id, owner_name, owner_email, type, status, file_hash, mime_type, object_key,
	blockchain_type, attestation_id, nft_mint_address, transaction_ref, issuance_status,
	last_disposition, identity_hold, report, issued_at, expires_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, doc *models.Document) error {
	report, err := encodeReport(doc.Report)
	if err != nil {
		return err
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`,
		uuid.UUID(doc.ID),
		uuid.UUID(doc.UserID),
		doc.OwnerName,
		doc.OwnerEmail,
		string(doc.Type),
		string(doc.Status),
		doc.FileHash,
		doc.MimeType,
		doc.ObjectKey,
		string(doc.BlockchainType),
		nullString(doc.AttestationID),
		nullString(doc.NFTMintAddress),
		nullString(doc.TransactionRef),
		string(doc.IssuanceStatus),
		string(doc.LastDisposition),
		doc.IdentityHold,
		report,
		doc.IssuedAt,
		doc.ExpiresAt,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("document %s: %w", doc.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, documentID id.DocumentID) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	if _, inTx := txcontext.From(ctx); inTx {
		query += ` FOR UPDATE`
	}
	doc, err := scanDocument(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(documentID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) Update(ctx context.Context, doc *models.Document) error {
	report, err := encodeReport(doc.Report)
	if err != nil {
		return err
	}
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE documents SET
			status = $2,
			attestation_id = $3,
			nft_mint_address = $4,
			transaction_ref = $5,
			issuance_status = $6,
			last_disposition = $7,
			identity_hold = $8,
			report = $9,
			issued_at = $10,
			expires_at = $11,
			updated_at = $12
		WHERE id = $1
	`,
		uuid.UUID(doc.ID),
		string(doc.Status),
		nullString(doc.AttestationID),
		nullString(doc.NFTMintAddress),
		nullString(doc.TransactionRef),
		string(doc.IssuanceStatus),
		string(doc.LastDisposition),
		doc.IdentityHold,
		report,
		doc.IssuedAt,
		doc.ExpiresAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListReviewQueue(ctx context.Context, skip, take int) ([]*models.Document, int, error) {
	const queueFilter = `status = 'PENDING' AND last_disposition = 'REVIEW' AND identity_hold = FALSE`

	var total int
	if err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE `+queueFilter).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count review queue: %w", err)
	}

	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE `+queueFilter+`
		ORDER BY created_at, id
		OFFSET $1 LIMIT $2
	`, skip, take)
	if err != nil {
		return nil, 0, fmt.Errorf("list review queue: %w", err)
	}
	defer rows.Close()

	docs := []*models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan review queue: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate review queue: %w", err)
	}
	return docs, total, nil
}

func (s *PostgresStore) ListExpiring(ctx context.Context, now time.Time, limit int) ([]id.DocumentID, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id FROM documents
		WHERE status = 'VERIFIED' AND expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("find expired documents: %w", err)
	}
	defer rows.Close()

	var out []id.DocumentID
	for rows.Next() {
		var docID uuid.UUID
		if err := rows.Scan(&docID); err != nil {
			return nil, fmt.Errorf("scan expired document: %w", err)
		}
		out = append(out, id.DocumentID(docID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired documents: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ExistingIDs(ctx context.Context, ids []id.DocumentID) (map[id.DocumentID]bool, error) {
	out := make(map[id.DocumentID]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	params := make([]string, len(ids))
	for i, documentID := range ids {
		params[i] = documentID.String()
	}
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT id FROM documents WHERE id = ANY($1::uuid[])`, pq.Array(params))
	if err != nil {
		return nil, fmt.Errorf("select existing documents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var docID uuid.UUID
		if err := rows.Scan(&docID); err != nil {
			return nil, fmt.Errorf("scan existing document: %w", err)
		}
		out[id.DocumentID(docID)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing documents: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc             models.Document
		docID, userID   uuid.UUID
		docType         string
		status          string
		blockchain      string
		attestationID   sql.NullString
		mintAddress     sql.NullString
		txRef           sql.NullString
		issuanceStatus  string
		lastDisposition string
		report          []byte
		issuedAt        sql.NullTime
		expiresAt       sql.NullTime
	)
	if err := row.Scan(
		&docID, &userID, &doc.OwnerName, &doc.OwnerEmail, &docType, &status, &doc.FileHash, &doc.MimeType, &doc.ObjectKey,
		&blockchain, &attestationID, &mintAddress, &txRef, &issuanceStatus,
		&lastDisposition, &doc.IdentityHold, &report, &issuedAt, &expiresAt, &doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	doc.ID = id.DocumentID(docID)
	doc.UserID = id.UserID(userID)
	doc.Type = id.DocumentType(docType)
	doc.Status = models.Status(status)
	doc.BlockchainType = id.BlockchainType(blockchain)
	doc.AttestationID = attestationID.String
	doc.NFTMintAddress = mintAddress.String
	doc.TransactionRef = txRef.String
	doc.IssuanceStatus = models.IssuanceStatus(issuanceStatus)
	doc.LastDisposition = policy.Disposition(lastDisposition)
	if issuedAt.Valid {
		t := issuedAt.Time
		doc.IssuedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		doc.ExpiresAt = &t
	}
	if len(report) > 0 {
		var r forensics.Report
		if err := json.Unmarshal(report, &r); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		doc.Report = &r
	}
	return &doc, nil
}

func encodeReport(r *forensics.Report) (any, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
