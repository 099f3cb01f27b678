package tx

import (
	"context"
	"database/sql"
	"sync"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Unit collects writes made by in-memory stores so they become visible together.
// Writes deferred to a Unit are applied in order by Commit and dropped when the
// unit is discarded.
type Unit struct {
	mu        sync.Mutex
	ops       []func()
	committed bool
}

type unitKey struct{}

// WithUnit starts a deferred-write unit and stores it in the context.
func WithUnit(ctx context.Context) (context.Context, *Unit) {
	u := &Unit{}
	return context.WithValue(ctx, unitKey{}, u), u
}

// UnitFrom extracts the active unit if present.
func UnitFrom(ctx context.Context) (*Unit, bool) {
	u, ok := ctx.Value(unitKey{}).(*Unit)
	return u, ok
}

// Defer queues op for Commit. After Commit it runs immediately.
func (u *Unit) Defer(op func()) {
	u.mu.Lock()
	if u.committed {
		u.mu.Unlock()
		op()
		return
	}
	u.ops = append(u.ops, op)
	u.mu.Unlock()
}

// Commit applies every deferred write in order.
func (u *Unit) Commit() {
	u.mu.Lock()
	ops := u.ops
	u.ops = nil
	u.committed = true
	u.mu.Unlock()
	for _, op := range ops {
		op()
	}
}

// Apply runs op inside the context's unit, or immediately when there is none.
func Apply(ctx context.Context, op func()) {
	if u, ok := UnitFrom(ctx); ok {
		u.Defer(op)
		return
	}
	op()
}
