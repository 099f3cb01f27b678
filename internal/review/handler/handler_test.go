package handler

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgate/internal/document/models"
	docstore "docgate/internal/document/store"
	"docgate/internal/forensics"
	"docgate/internal/policy"
	"docgate/internal/review"
	id "docgate/pkg/domain"
	"docgate/pkg/testutil"
)

func newRouter(t *testing.T, n int) http.Handler {
	t.Helper()
	store := docstore.NewInMemory()
	for i := range n {
		doc := models.NewDocument(id.UserID(uuid.New()), "Rosa Diaz", "rosa@example.com",
			id.DocumentTypeNationalID, uuid.NewString(), "image/png", time.Now().Add(time.Duration(i)*time.Second))
		doc.LastDisposition = policy.DispositionReview
		doc.Report = &forensics.Report{
			OverallScore: 77,
			Scores:       forensics.Scores{Integrity: 81, Authenticity: 74},
			TamperRisk:   forensics.TamperRiskLow,
			Findings:     []forensics.Finding{{Category: "ocr", Severity: "low", Description: "name partly obscured"}},
		}
		require.NoError(t, store.Create(context.Background(), doc))
	}
	r := chi.NewRouter()
	New(review.New(store, nil), slog.Default()).Register(r)
	return r
}

func TestHandleList(t *testing.T) {
	router := newRouter(t, 3)

	t.Run("returns queue with reviewer context and meta", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/audit-queue?skip=0&take=2"))
		testutil.AssertStatusOK(t, rr)

		resp := testutil.UnmarshalResponse[QueueResponse](t, rr)
		assert.Equal(t, QueueMeta{Total: 3, Count: 2, HasMore: true}, resp.Meta)
		require.Len(t, resp.Queue, 2)
		item := resp.Queue[0]
		assert.Equal(t, "Rosa Diaz", item.OwnerName)
		require.NotNil(t, item.Report)
		assert.Equal(t, 74, item.Report.Breakdown.Authenticity)
		assert.Len(t, item.Report.Findings, 1)
	})

	t.Run("meta uses camelCase keys", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/audit-queue?take=1"))
		testutil.AssertStatusOK(t, rr)

		resp := testutil.UnmarshalObject(t, rr)
		meta, ok := resp["meta"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, true, meta["hasMore"])
		assert.NotContains(t, meta, "has_more")
		queue, ok := resp["queue"].([]any)
		require.True(t, ok)
		require.Len(t, queue, 1)
		item, ok := queue[0].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, item, "userId")
		assert.Contains(t, item, "blockchainStatus")
	})

	t.Run("defaults apply when parameters are absent", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/audit-queue"))
		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[QueueResponse](t, rr)
		assert.Equal(t, 3, resp.Meta.Count)
		assert.False(t, resp.Meta.HasMore)
	})

	t.Run("out of range take is rejected", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/audit-queue?take=500"))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
	})

	t.Run("non-numeric skip is rejected", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/audit-queue?skip=abc"))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
	})
}
