package service

import (
	"context"
	"sync"
	"time"

	id "docgate/pkg/domain"
	dErrors "docgate/pkg/domain-errors"
	txcontext "docgate/pkg/platform/tx"
)

// Operations are spread over shards by document id so unrelated documents do
// not contend on one lock.
const numDocumentShards = 128

const defaultDocumentTxTimeout = 5 * time.Second

// ShardedStoreTx is the in-memory StoreTx: a per-document mutex plus a
// deferred-write unit committed only when fn succeeds.
type ShardedStoreTx struct {
	shards  [numDocumentShards]sync.Mutex
	timeout time.Duration
}

func NewShardedStoreTx(timeout time.Duration) *ShardedStoreTx {
	return &ShardedStoreTx{timeout: timeout}
}

func (t *ShardedStoreTx) RunInTx(ctx context.Context, documentID id.DocumentID, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultDocumentTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := hashDocumentID(documentID.String()) % numDocumentShards
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	txCtx, unit := txcontext.WithUnit(ctx)
	if err := fn(txCtx); err != nil {
		return err
	}
	unit.Commit()
	return nil
}

// hashDocumentID is FNV-1a.
func hashDocumentID(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
