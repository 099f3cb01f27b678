package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	dochandler "docgate/internal/document/handler"
	"docgate/internal/intake"
	id "docgate/pkg/domain"
	dErrors "docgate/pkg/domain-errors"
	"docgate/pkg/platform/httputil"
	"docgate/pkg/requestcontext"
)

// multipartOverhead is room for the form fields and part headers on top of
// the file itself.
const multipartOverhead = 1 << 20

type Service interface {
	Submit(ctx context.Context, req intake.SubmitRequest) (*intake.Result, error)
	Reanalyze(ctx context.Context, caller requestcontext.Principal, documentID id.DocumentID, force bool) (*intake.Result, error)
	MaxUploadBytes() int64
}

// Handler serves document upload and reanalysis.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the owner-facing routes. Callers require authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/documents", h.HandleSubmit)
	r.Post("/documents/{documentId}/reanalyze", h.HandleReanalyze)
}

type SubmitResponse struct {
	Document        dochandler.DocumentResponse `json:"document"`
	Decision        dochandler.DecisionResponse `json:"decision"`
	Cached          bool                        `json:"cachedReport"`
	ReferenceID     string                      `json:"referenceId,omitempty"`
	IssuanceWarning string                      `json:"issuanceWarning,omitempty"`
}

func toResponse(res *intake.Result) SubmitResponse {
	resp := SubmitResponse{
		Document:        dochandler.FromDocument(res.Document),
		Decision:        dochandler.FromDecision(res.Decision),
		Cached:          res.Cached,
		IssuanceWarning: res.IssuanceWarning,
	}
	if res.Receipt != nil {
		resp.ReferenceID = res.Receipt.ReferenceID
	}
	return resp
}

// HandleSubmit accepts multipart/form-data with a "type" field and a "file" part.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	principal, ok := requestcontext.PrincipalFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	maxBytes := h.service.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxBytes + multipartOverhead); err != nil {
		h.logger.WarnContext(ctx, "failed to parse upload",
			"request_id", requestID,
			"error", err,
		)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "file exceeds the upload limit").
				WithDetail("max_bytes", strconv.FormatInt(maxBytes, 10)))
			return
		}
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "expected multipart/form-data with type and file"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "file is required").WithDetail("field", "file"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read file"))
		return
	}

	res, err := h.service.Submit(ctx, intake.SubmitRequest{
		Owner:        principal,
		DocumentType: strings.ToUpper(strings.TrimSpace(r.FormValue("type"))),
		MimeType:     detectMime(header.Header.Get("Content-Type"), data),
		Data:         data,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "document submission failed",
			"request_id", requestID,
			"user_id", principal.UserID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(res))
}

// HandleReanalyze re-runs analysis; ?force=true bypasses the forensic cache.
func (h *Handler) HandleReanalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	principal, ok := requestcontext.PrincipalFrom(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	documentID, err := id.ParseDocumentID(chi.URLParam(r, "documentId"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "documentId must be a valid UUID"))
		return
	}
	force := false
	if raw := r.URL.Query().Get("force"); raw != "" {
		if force, err = strconv.ParseBool(raw); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "force must be a boolean"))
			return
		}
	}

	res, err := h.service.Reanalyze(ctx, principal, documentID, force)
	if err != nil {
		h.logger.WarnContext(ctx, "reanalysis failed",
			"request_id", requestID,
			"document_id", documentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(res))
}

// detectMime trusts the part's declared type unless it is missing or generic.
func detectMime(declared string, data []byte) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}
