package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"docgate/internal/issuance"
	id "docgate/pkg/domain"
	txcontext "docgate/pkg/platform/tx"
)

// PostgresStore persists pending issuances in pending_issuances.
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

func (s *PostgresStore) Enqueue(ctx context.Context, p *issuance.Pending) error {
	payload, err := issuance.Encode(p.Request)
	if err != nil {
		return fmt.Errorf("encode pending issuance: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO pending_issuances (document_id, kind, request, state, attempts, last_error, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (document_id) DO UPDATE SET
			kind = EXCLUDED.kind,
			request = EXCLUDED.request,
			state = EXCLUDED.state,
			attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			next_attempt_at = EXCLUDED.next_attempt_at,
			updated_at = EXCLUDED.updated_at
	`,
		uuid.UUID(p.DocumentID),
		string(p.Request.Kind()),
		payload,
		string(p.State),
		p.Attempts,
		p.LastError,
		p.NextAttemptAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue pending issuance: %w", err)
	}
	return nil
}

func (s *PostgresStore) Due(ctx context.Context, now time.Time, limit int) ([]*issuance.Pending, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT document_id, kind, request, state, attempts, last_error, next_attempt_at, created_at, updated_at
		FROM pending_issuances
		WHERE state = 'pending' AND next_attempt_at <= $1
		ORDER BY next_attempt_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select due issuances: %w", err)
	}
	defer rows.Close()

	var out []*issuance.Pending
	for rows.Next() {
		var (
			p       issuance.Pending
			docID   uuid.UUID
			kind    string
			payload []byte
			state   string
		)
		if err := rows.Scan(&docID, &kind, &payload, &state, &p.Attempts, &p.LastError,
			&p.NextAttemptAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan pending issuance: %w", err)
		}
		req, err := issuance.Decode(issuance.Kind(kind), payload)
		if err != nil {
			return nil, err
		}
		p.DocumentID = id.DocumentID(docID)
		p.Request = req
		p.State = issuance.PendingState(state)
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending issuances: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, p *issuance.Pending) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE pending_issuances
		SET state = $2, attempts = $3, last_error = $4, next_attempt_at = $5, updated_at = $6
		WHERE document_id = $1
	`, uuid.UUID(p.DocumentID), string(p.State), p.Attempts, p.LastError, p.NextAttemptAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update pending issuance: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, documentID id.DocumentID) error {
	_, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM pending_issuances WHERE document_id = $1`, uuid.UUID(documentID))
	if err != nil {
		return fmt.Errorf("delete pending issuance: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountQueued(ctx context.Context) (int, error) {
	var n int
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT count(*) FROM pending_issuances WHERE state = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending issuances: %w", err)
	}
	return n, nil
}
