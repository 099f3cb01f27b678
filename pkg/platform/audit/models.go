package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "docgate/pkg/domain"
)

// Action is the closed vocabulary of audit actions. Every document state
// transition records exactly one of these.
type Action string

const (
	ActionVerifiedBySystem   Action = "VERIFIED_BY_SYSTEM"
	ActionRejectedBySystem   Action = "REJECTED_BY_SYSTEM"
	ActionVerifiedByMaker    Action = "VERIFIED_BY_MAKER"
	ActionRejectedByMaker    Action = "REJECTED_BY_MAKER"
	ActionVerifiedByVerifier Action = "VERIFIED_BY_VERIFIER"
	ActionRevokePermission   Action = "REVOKE_PERMISSION"
	ActionDocumentExpired    Action = "DOCUMENT_EXPIRED"
)

var validActions = map[Action]struct{}{
	ActionVerifiedBySystem:   {},
	ActionRejectedBySystem:   {},
	ActionVerifiedByMaker:    {},
	ActionRejectedByMaker:    {},
	ActionVerifiedByVerifier: {},
	ActionRevokePermission:   {},
	ActionDocumentExpired:    {},
}

func (a Action) IsValid() bool {
	_, ok := validActions[a]
	return ok
}

func (a Action) String() string {
	return string(a)
}

// Entry is an append-only audit log record. Entries are never updated or deleted.
type Entry struct {
	ID         uuid.UUID
	ActorID    id.UserID
	DocumentID id.DocumentID
	Action     Action
	Metadata   map[string]string
	Timestamp  time.Time
	RequestID  string
}

// Store persists audit entries. Implementations must join the caller's unit of
// work (SQL transaction or in-memory deferred unit) when one is present in ctx.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByDocument(ctx context.Context, documentID id.DocumentID) ([]Entry, error)
}
