package handler

import (
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgate/internal/batch"
	id "docgate/pkg/domain"
	dErrors "docgate/pkg/domain-errors"
	"docgate/pkg/testutil"
)

type stubProcessor struct {
	gotKey   string
	gotItems []batch.Item
	err      error
}

func (s *stubProcessor) ApplyBatch(_ context.Context, _ id.UserID, items []batch.Item, key string) (*batch.Result, error) {
	s.gotKey = key
	s.gotItems = items
	if s.err != nil {
		return nil, s.err
	}
	return &batch.Result{
		Summary: batch.Summary{Total: len(items), Processed: len(items), Succeeded: len(items)},
		Results: []batch.ItemResult{{Index: 0, DocumentID: items[0].DocumentID, Action: "APPROVE", Success: true, Status: "VERIFIED"}},
	}, nil
}

func newRouter(p Processor) http.Handler {
	r := chi.NewRouter()
	New(p, slog.Default()).Register(r)
	return r
}

func TestHandleBatch(t *testing.T) {
	maker := uuid.NewString()
	body := map[string]any{"actions": []map[string]string{{"documentId": uuid.NewString(), "action": "APPROVE"}}}

	t.Run("passes idempotency key and returns summary", func(t *testing.T) {
		stub := &stubProcessor{}
		req := testutil.WithPrincipal(testutil.NewJSONRequest(t, http.MethodPost, "/audit-batch", body), maker, id.RoleMaker)
		req.Header.Set(HeaderIdempotencyKey, " abc-123 ")
		rr := testutil.DoRequest(newRouter(stub), req)

		testutil.AssertStatusOK(t, rr)
		assert.Equal(t, "abc-123", stub.gotKey)
		resp := testutil.UnmarshalResponse[batch.Result](t, rr)
		assert.Equal(t, 1, resp.Summary.Succeeded)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "VERIFIED", resp.Results[0].Status)
	})

	t.Run("wire keys are camelCase", func(t *testing.T) {
		docID := uuid.NewString()
		stub := &stubProcessor{}
		payload := map[string]any{"actions": []map[string]string{{"documentId": docID, "action": "REJECT", "comments": "blurry"}}}
		req := testutil.WithPrincipal(testutil.NewJSONRequest(t, http.MethodPost, "/audit-batch", payload), maker, id.RoleMaker)
		rr := testutil.DoRequest(newRouter(stub), req)

		testutil.AssertStatusOK(t, rr)
		require.Len(t, stub.gotItems, 1)
		assert.Equal(t, docID, stub.gotItems[0].DocumentID)
		assert.Equal(t, "blurry", stub.gotItems[0].Comments)

		resp := testutil.UnmarshalObject(t, rr)
		results, ok := resp["results"].([]any)
		require.True(t, ok)
		require.Len(t, results, 1)
		item, ok := results[0].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, docID, item["documentId"])
		summary, ok := resp["summary"].(map[string]any)
		require.True(t, ok)
		assert.ElementsMatch(t, []string{"total", "processed", "succeeded", "failed"}, keys(summary))
	})

	t.Run("unknown item keys are refused before processing", func(t *testing.T) {
		stub := &stubProcessor{}
		payload := map[string]any{"actions": []map[string]string{{"document_id": uuid.NewString(), "action": "APPROVE"}}}
		req := testutil.WithPrincipal(testutil.NewJSONRequest(t, http.MethodPost, "/audit-batch", payload), maker, id.RoleMaker)
		rr := testutil.DoRequest(newRouter(stub), req)

		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
		assert.Nil(t, stub.gotItems)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rr := testutil.DoRequest(newRouter(&stubProcessor{}), testutil.NewJSONRequest(t, http.MethodPost, "/audit-batch", body))
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("malformed JSON", func(t *testing.T) {
		req := testutil.WithPrincipal(testutil.NewRequestWithBody(t, http.MethodPost, "/audit-batch", "{"), maker, id.RoleMaker)
		rr := testutil.DoRequest(newRouter(&stubProcessor{}), req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})

	t.Run("missing actions", func(t *testing.T) {
		req := testutil.WithPrincipal(testutil.NewJSONRequest(t, http.MethodPost, "/audit-batch", map[string]any{}), maker, id.RoleMaker)
		rr := testutil.DoRequest(newRouter(&stubProcessor{}), req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "validation_error")
	})

	t.Run("itemised validation issues are returned", func(t *testing.T) {
		stub := &stubProcessor{err: dErrors.New(dErrors.CodeValidation, "batch contains invalid actions").
			WithIssues([]dErrors.Issue{{Index: 0, Field: "action", Message: "must be APPROVE or REJECT"}})}
		req := testutil.WithPrincipal(testutil.NewJSONRequest(t, http.MethodPost, "/audit-batch", body), maker, id.RoleMaker)
		rr := testutil.DoRequest(newRouter(stub), req)

		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		errBody := testutil.UnmarshalErrorResponse(t, rr)
		issues, ok := errBody["issues"].([]any)
		require.True(t, ok)
		assert.Len(t, issues, 1)
	})
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
