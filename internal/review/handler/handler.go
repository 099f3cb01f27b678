package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	dochandler "docgate/internal/document/handler"
	"docgate/internal/review"
	dErrors "docgate/pkg/domain-errors"
	"docgate/pkg/platform/httputil"
	"docgate/pkg/requestcontext"
)

type Service interface {
	ListPending(ctx context.Context, skip, take int) (*review.Page, error)
}

// Handler serves GET /audit-queue.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the queue route. Callers restrict it to makers.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit-queue", h.HandleList)
}

type QueueResponse struct {
	Queue []dochandler.DocumentResponse `json:"queue"`
	Meta  QueueMeta                     `json:"meta"`
}

type QueueMeta struct {
	Total   int  `json:"total"`
	Count   int  `json:"count"`
	HasMore bool `json:"hasMore"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	skip, err := intParam(r, "skip", 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	take, err := intParam(r, "take", review.DefaultTake)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	page, err := h.service.ListPending(ctx, skip, take)
	if err != nil {
		h.logger.WarnContext(ctx, "review queue listing failed",
			"request_id", requestID,
			"skip", skip,
			"take", take,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	queue := make([]dochandler.DocumentResponse, 0, len(page.Items))
	for _, doc := range page.Items {
		queue = append(queue, dochandler.FromDocument(doc))
	}
	httputil.WriteJSON(w, http.StatusOK, QueueResponse{
		Queue: queue,
		Meta: QueueMeta{
			Total:   page.Total,
			Count:   len(queue),
			HasMore: page.HasMore(),
		},
	})
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, name+" must be an integer").
			WithDetail("field", name)
	}
	return v, nil
}
