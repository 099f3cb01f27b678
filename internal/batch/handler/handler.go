package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"docgate/internal/batch"
	id "docgate/pkg/domain"
	dErrors "docgate/pkg/domain-errors"
	"docgate/pkg/platform/httputil"
	"docgate/pkg/requestcontext"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	maxIdempotencyKeyLen = 128
)

type Processor interface {
	ApplyBatch(ctx context.Context, actor id.UserID, items []batch.Item, idempotencyKey string) (*batch.Result, error)
}

// Handler serves POST /audit-batch.
type Handler struct {
	processor Processor
	logger    *slog.Logger
}

func New(processor Processor, logger *slog.Logger) *Handler {
	return &Handler{processor: processor, logger: logger}
}

// Register mounts the batch route. Callers restrict it to makers.
func (h *Handler) Register(r chi.Router) {
	r.Post("/audit-batch", h.HandleBatch)
}

// BatchRequest is the body of POST /audit-batch.
type BatchRequest struct {
	Actions []batch.Item `json:"actions"`
}

func (r *BatchRequest) Validate() error {
	if r.Actions == nil {
		return dErrors.New(dErrors.CodeValidation, "actions is required")
	}
	return nil
}

func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor := requestcontext.UserID(ctx)
	if actor.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if len(key) > maxIdempotencyKeyLen {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "Idempotency-Key is too long"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[BatchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.processor.ApplyBatch(ctx, actor, req.Actions, key)
	if err != nil {
		h.logger.WarnContext(ctx, "batch rejected",
			"request_id", requestID,
			"actor_id", actor,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
