package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgate/internal/document/models"
	"docgate/internal/policy"
	id "docgate/pkg/domain"
	"docgate/pkg/platform/sentinel"
	txcontext "docgate/pkg/platform/tx"
)

func newDoc(createdAt time.Time) *models.Document {
	return models.NewDocument(id.UserID(uuid.New()), "Owner", "owner@example.com",
		id.DocumentTypeDiploma, uuid.NewString(), "application/pdf", createdAt)
}

func TestInMemoryStore_CopiesOnReadAndWrite(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	doc := newDoc(time.Now())
	require.NoError(t, s.Create(ctx, doc))

	doc.OwnerName = "mutated"
	got, err := s.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Owner", got.OwnerName)

	got.Status = models.StatusRejected
	again, err := s.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, again.Status)

	assert.ErrorIs(t, s.Create(ctx, again), sentinel.ErrConflict)
	_, err = s.FindByID(ctx, id.NewDocumentID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStore_UpdateJoinsUnit(t *testing.T) {
	s := NewInMemory()
	doc := newDoc(time.Now())
	require.NoError(t, s.Create(context.Background(), doc))

	ctx, unit := txcontext.WithUnit(context.Background())
	doc.Status = models.StatusVerified
	require.NoError(t, s.Update(ctx, doc))

	got, _ := s.FindByID(context.Background(), doc.ID)
	assert.Equal(t, models.StatusPending, got.Status)

	unit.Commit()
	got, _ = s.FindByID(context.Background(), doc.ID)
	assert.Equal(t, models.StatusVerified, got.Status)
}

func TestInMemoryStore_ReviewQueueIsFIFO(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var want []id.DocumentID
	for i := range 5 {
		doc := newDoc(base.Add(time.Duration(4-i) * time.Minute))
		doc.LastDisposition = policy.DispositionReview
		require.NoError(t, s.Create(ctx, doc))
		want = append([]id.DocumentID{doc.ID}, want...)
	}
	held := newDoc(base.Add(-time.Hour))
	held.LastDisposition = policy.DispositionReview
	held.IdentityHold = true
	require.NoError(t, s.Create(ctx, held))

	page, total, err := s.ListReviewQueue(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, want[1], page[0].ID)
	assert.Equal(t, want[2], page[1].ID)

	page, total, err = s.ListReviewQueue(ctx, 10, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, page)
}

func TestInMemoryStore_ListExpiring(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	expired := newDoc(now)
	require.NoError(t, expired.Verify(now.Add(-2*time.Hour)))
	past := now.Add(-time.Hour)
	expired.ExpiresAt = &past

	live := newDoc(now)
	require.NoError(t, live.Verify(now))
	future := now.Add(time.Hour)
	live.ExpiresAt = &future

	require.NoError(t, s.Create(ctx, expired))
	require.NoError(t, s.Create(ctx, live))

	ids, err := s.ListExpiring(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, []id.DocumentID{expired.ID}, ids)

	existing, err := s.ExistingIDs(ctx, []id.DocumentID{expired.ID, id.NewDocumentID()})
	require.NoError(t, err)
	assert.Equal(t, map[id.DocumentID]bool{expired.ID: true}, existing)
}
