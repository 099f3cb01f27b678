package issuance

import (
	"context"
	"time"

	id "docgate/pkg/domain"
)

// PendingState tracks a reconciliation record.
type PendingState string

const (
	PendingStateQueued PendingState = "pending"
	// PendingStateFailed means attempts are exhausted; an operator must act.
	PendingStateFailed PendingState = "failed"
)

// Pending is an issuance that failed after its document was verified and
// awaits retry.
type Pending struct {
	DocumentID    id.DocumentID
	Request       Request
	State         PendingState
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PendingStore is the dead-letter list of issuances to reconcile.
type PendingStore interface {
	// Enqueue inserts p, or replaces the record for the same document.
	Enqueue(ctx context.Context, p *Pending) error
	// Due returns queued records with NextAttemptAt <= now, oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]*Pending, error)
	Update(ctx context.Context, p *Pending) error
	Delete(ctx context.Context, documentID id.DocumentID) error
	CountQueued(ctx context.Context) (int, error)
}

const maxBackoff = time.Hour

// Backoff returns the delay before attempt number attempts+1: base doubled for
// every earlier attempt, capped at one hour.
func Backoff(attempts int, base time.Duration) time.Duration {
	if base <= 0 {
		base = 30 * time.Second
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
