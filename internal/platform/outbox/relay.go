// Package outbox publishes rows written to the outbox table by the audit store
// and marks them published.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"docgate/internal/platform/kafka"
)

// Publisher sends a batch to a topic. *kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, msgs []kafka.Message) error
}

// Relay drains the outbox in created_at order. Rows are claimed with
// FOR UPDATE SKIP LOCKED so several relays can run side by side; delivery is
// at-least-once.
type Relay struct {
	db        *sql.DB
	publisher Publisher
	topic     string
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
	metrics   *Metrics
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func NewRelay(db *sql.DB, publisher Publisher, topic string, opts ...Option) *Relay {
	r := &Relay{
		db:        db,
		publisher: publisher,
		topic:     topic,
		batchSize: 100,
		interval:  2 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type row struct {
	id          string
	aggregateID string
	eventType   string
	payload     []byte
}

// RunOnce publishes up to one batch and returns how many rows it published.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("select outbox rows: %w", err)
	}
	var batch []row
	for rows.Next() {
		var rw row
		if err := rows.Scan(&rw.id, &rw.aggregateID, &rw.eventType, &rw.payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, rw)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate outbox rows: %w", err)
	}
	rows.Close()
	if len(batch) == 0 {
		return 0, nil
	}

	msgs, ids := toMessages(batch)
	if err := r.publisher.Publish(ctx, r.topic, msgs); err != nil {
		r.metrics.incFailures()
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE outbox SET published_at = $1 WHERE id = ANY($2::uuid[])`,
		time.Now(), pq.Array(ids),
	); err != nil {
		return 0, fmt.Errorf("mark outbox rows published: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox tx: %w", err)
	}
	r.metrics.addPublished(len(batch))
	return len(batch), nil
}

// Run drains on every tick until ctx is cancelled. A full batch triggers an
// immediate follow-up pass.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		for {
			n, err := r.RunOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.ErrorContext(ctx, "outbox relay pass failed", "error", err)
				break
			}
			if n < r.batchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func toMessages(batch []row) ([]kafka.Message, []string) {
	msgs := make([]kafka.Message, 0, len(batch))
	ids := make([]string, 0, len(batch))
	for _, rw := range batch {
		msgs = append(msgs, kafka.Message{
			Key:   rw.aggregateID,
			Value: rw.payload,
			Headers: map[string]string{
				"event_id":   rw.id,
				"event_type": rw.eventType,
			},
		})
		ids = append(ids, rw.id)
	}
	return msgs, ids
}
