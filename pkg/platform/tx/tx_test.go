package tx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApply_WithoutUnitRunsImmediately(t *testing.T) {
	var n int
	Apply(context.Background(), func() { n++ })
	assert.Equal(t, 1, n)
}

// Justification: memory stores rely on deferred writes to make a document
// update and its audit entry visible together or not at all.
func TestUnit_DefersUntilCommit(t *testing.T) {
	ctx, unit := WithUnit(context.Background())
	var order []int
	Apply(ctx, func() { order = append(order, 1) })
	Apply(ctx, func() { order = append(order, 2) })
	assert.Empty(t, order)

	unit.Commit()
	assert.Equal(t, []int{1, 2}, order)

	Apply(ctx, func() { order = append(order, 3) })
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestUnit_DiscardedDropsWrites(t *testing.T) {
	ctx, _ := WithUnit(context.Background())
	var n int
	Apply(ctx, func() { n++ })
	assert.Zero(t, n)
}
