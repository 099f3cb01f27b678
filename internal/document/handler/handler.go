package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"docgate/internal/document/models"
	"docgate/internal/document/service"
	id "docgate/pkg/domain"
	dErrors "docgate/pkg/domain-errors"
	"docgate/pkg/platform/httputil"
	"docgate/pkg/requestcontext"
)

// Service defines the document operations exposed over HTTP.
type Service interface {
	Status(ctx context.Context, documentID id.DocumentID, caller requestcontext.Principal) (*service.StatusView, error)
	ConfirmByVerifier(ctx context.Context, documentID id.DocumentID, verifierID id.UserID, comments string) (*models.Document, error)
}

// Handler wires status lookup and verifier confirmation.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the routes for any authenticated caller.
func (h *Handler) Register(r chi.Router) {
	r.Get("/forensic-status/{documentId}", h.HandleStatus)
}

// RegisterVerifier mounts routes restricted to verifiers.
func (h *Handler) RegisterVerifier(r chi.Router) {
	r.Post("/documents/{documentId}/confirm", h.HandleConfirm)
}

// HandleStatus handles GET /forensic-status/{documentId}.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := requestcontext.PrincipalFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "documentId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	view, err := h.service.Status(ctx, documentID, caller)
	if err != nil {
		h.logger.WarnContext(ctx, "status lookup failed",
			"request_id", requestID,
			"document_id", documentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromStatus(view))
}

// ConfirmRequest is the optional body of POST /documents/{documentId}/confirm.
type ConfirmRequest struct {
	Comments string `json:"comments"`
}

func (r *ConfirmRequest) Validate() error {
	r.Comments = strings.TrimSpace(r.Comments)
	if utf8.RuneCountInString(r.Comments) > models.MaxCommentLength {
		return dErrors.New(dErrors.CodeValidation, "comments must be at most 1000 characters")
	}
	return nil
}

// HandleConfirm handles POST /documents/{documentId}/confirm.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	verifierID := requestcontext.UserID(ctx)
	if verifierID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "documentId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	comments := ""
	if r.ContentLength != 0 {
		req, ok := httputil.DecodeAndPrepare[ConfirmRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
		comments = req.Comments
	}

	doc, err := h.service.ConfirmByVerifier(ctx, documentID, verifierID, comments)
	if err != nil {
		h.logger.WarnContext(ctx, "verifier confirmation failed",
			"request_id", requestID,
			"document_id", documentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "document confirmed by verifier",
		"request_id", requestID,
		"document_id", documentID,
		"verifier_id", verifierID,
	)
	httputil.WriteJSON(w, http.StatusOK, FromDocument(doc))
}
