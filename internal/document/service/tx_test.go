package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "docgate/pkg/domain"
	dErrors "docgate/pkg/domain-errors"
	txcontext "docgate/pkg/platform/tx"
)

func TestShardedStoreTx_CommitsOnlyOnSuccess(t *testing.T) {
	tx := NewShardedStoreTx(time.Second)
	docID := id.NewDocumentID()
	var applied []string

	err := tx.RunInTx(context.Background(), docID, func(ctx context.Context) error {
		txcontext.Apply(ctx, func() { applied = append(applied, "kept") })
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = tx.RunInTx(context.Background(), docID, func(ctx context.Context) error {
		txcontext.Apply(ctx, func() { applied = append(applied, "dropped") })
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"kept"}, applied)
}

func TestShardedStoreTx_SerialisesOneDocument(t *testing.T) {
	tx := NewShardedStoreTx(time.Second)
	docID := id.NewDocumentID()
	counter := 0

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tx.RunInTx(context.Background(), docID, func(context.Context) error {
				v := counter
				time.Sleep(time.Microsecond)
				counter = v + 1
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestShardedStoreTx_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewShardedStoreTx(0).RunInTx(ctx, id.NewDocumentID(), func(context.Context) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}
