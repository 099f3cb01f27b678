package review_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgate/internal/document/models"
	docstore "docgate/internal/document/store"
	"docgate/internal/policy"
	"docgate/internal/review"
	id "docgate/pkg/domain"
	dErrors "docgate/pkg/domain-errors"
)

func seedQueue(t *testing.T, n int) (*docstore.InMemoryStore, []id.DocumentID) {
	t.Helper()
	s := docstore.NewInMemory()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	var ids []id.DocumentID
	for i := range n {
		doc := models.NewDocument(id.UserID(uuid.New()), "Owner", "owner@example.com",
			id.DocumentTypeDiploma, uuid.NewString(), "image/png", base.Add(time.Duration(i)*time.Minute))
		doc.LastDisposition = policy.DispositionReview
		require.NoError(t, s.Create(context.Background(), doc))
		ids = append(ids, doc.ID)
	}
	return s, ids
}

func TestListPending_Pagination(t *testing.T) {
	store, ids := seedQueue(t, 5)
	svc := review.New(store, nil)

	page, err := svc.ListPending(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, ids[0], page.Items[0].ID, "oldest first")
	assert.True(t, page.HasMore())

	page, err = svc.ListPending(context.Background(), 4, 100)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, ids[4], page.Items[0].ID)
	assert.False(t, page.HasMore())
}

func TestListPending_RejectsOutOfRangeWithoutClamping(t *testing.T) {
	store, _ := seedQueue(t, 1)
	svc := review.New(store, nil)

	tests := []struct {
		name       string
		skip, take int
	}{
		{"take zero", 0, 0},
		{"take above max", 0, 101},
		{"negative take", 0, -1},
		{"negative skip", -1, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ListPending(context.Background(), tt.skip, tt.take)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}
