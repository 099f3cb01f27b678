package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "docgate/pkg/domain"
	audit "docgate/pkg/platform/audit"
	txcontext "docgate/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Each entry is written to audit_log and to the outbox table in the caller's
// transaction; the outbox relay publishes it to Kafka afterwards.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka.
type outboxPayload struct {
	ID         string            `json:"id"`
	ActorID    string            `json:"actor_id"`
	DocumentID string            `json:"document_id"`
	Action     string            `json:"action"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  string            `json:"timestamp"`
	RequestID  string            `json:"request_id,omitempty"`
}

// Append writes the audit entry and its outbox record.
// Idempotent on entry ID via ON CONFLICT DO NOTHING.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	exec := s.execer(ctx)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, document_id, action, metadata, timestamp, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`,
		entry.ID,
		uuid.UUID(entry.ActorID),
		uuid.UUID(entry.DocumentID),
		string(entry.Action),
		metadata,
		entry.Timestamp,
		entry.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	payload, err := json.Marshal(outboxPayload{
		ID:         entry.ID.String(),
		ActorID:    entry.ActorID.String(),
		DocumentID: entry.DocumentID.String(),
		Action:     string(entry.Action),
		Metadata:   entry.Metadata,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		RequestID:  entry.RequestID,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		uuid.New(),
		"document",
		entry.DocumentID.String(),
		string(entry.Action),
		payload,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListByDocument returns the entries for a document, oldest first.
func (s *Store) ListByDocument(ctx context.Context, documentID id.DocumentID) ([]audit.Entry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, actor_id, document_id, action, metadata, timestamp, request_id
		FROM audit_log
		WHERE document_id = $1
		ORDER BY timestamp ASC, id ASC
	`, uuid.UUID(documentID))
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			entry    audit.Entry
			actorID  uuid.UUID
			docID    uuid.UUID
			action   string
			metadata []byte
		)
		if err := rows.Scan(&entry.ID, &actorID, &docID, &action, &metadata, &entry.Timestamp, &entry.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.ActorID = id.UserID(actorID)
		entry.DocumentID = id.DocumentID(docID)
		entry.Action = audit.Action(action)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
