package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"docgate/internal/forensiccache"
	dErrors "docgate/pkg/domain-errors"
	"docgate/pkg/platform/httputil"
	"docgate/pkg/requestcontext"
)

type Cache interface {
	Entry(ctx context.Context, fileHash string) (*forensiccache.Entry, bool, error)
	Stats(ctx context.Context) (forensiccache.Stats, error)
	ResetStats(ctx context.Context) error
	Purge(ctx context.Context, olderThan time.Duration) (int, error)
}

// Handler serves the forensic cache admin routes.
type Handler struct {
	cache  Cache
	logger *slog.Logger
}

func New(cache Cache, logger *slog.Logger) *Handler {
	return &Handler{cache: cache, logger: logger}
}

// Register mounts the admin routes. Callers restrict them to admins.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/forensic-cache/stats", h.HandleStats)
	r.Get("/admin/forensic-cache/entries/{fileHash}", h.HandleEntry)
	r.Post("/admin/forensic-cache/purge", h.HandlePurge)
	r.Post("/admin/forensic-cache/stats/reset", h.HandleResetStats)
}

type PurgeResponse struct {
	Purged int `json:"purged"`
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cache.Stats(r.Context())
	if err != nil {
		h.fail(w, r, "read cache stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// EntryResponse describes one cached report without its contents.
type EntryResponse struct {
	FileHash     string    `json:"fileHash"`
	AnalysisID   string    `json:"analysisId"`
	OverallScore int       `json:"overallScore"`
	CachedAt     time.Time `json:"cachedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	HitCount     int64     `json:"hitCount"`
}

func (h *Handler) HandleEntry(w http.ResponseWriter, r *http.Request) {
	fileHash := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "fileHash")))
	if fileHash == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "fileHash is required").
			WithDetail("field", "fileHash"))
		return
	}
	entry, ok, err := h.cache.Entry(r.Context(), fileHash)
	if err != nil {
		h.fail(w, r, "read cache entry", err)
		return
	}
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no cached report for this file hash").
			WithDetail("file_hash", fileHash))
		return
	}
	resp := EntryResponse{
		FileHash:  entry.FileHash,
		CachedAt:  entry.CachedAt,
		ExpiresAt: entry.ExpiresAt,
		HitCount:  entry.HitCount,
	}
	if entry.Report != nil {
		resp.AnalysisID = entry.Report.AnalysisID.String()
		resp.OverallScore = entry.Report.OverallScore
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandlePurge accepts an optional older_than duration query parameter
// ("24h", "90m"). Without it only expired entries are removed.
func (h *Handler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	var olderThan time.Duration
	if raw := r.URL.Query().Get("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "older_than must be a non-negative duration such as 24h").
				WithDetail("field", "older_than"))
			return
		}
		olderThan = d
	}

	purged, err := h.cache.Purge(r.Context(), olderThan)
	if err != nil {
		h.fail(w, r, "purge cache", err)
		return
	}
	h.logger.InfoContext(r.Context(), "forensic cache purged",
		"request_id", requestcontext.RequestID(r.Context()),
		"actor_id", requestcontext.UserID(r.Context()),
		"older_than", olderThan.String(),
		"purged", purged,
		"log_type", "audit",
	)
	httputil.WriteJSON(w, http.StatusOK, PurgeResponse{Purged: purged})
}

func (h *Handler) HandleResetStats(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.ResetStats(r.Context()); err != nil {
		h.fail(w, r, "reset cache stats", err)
		return
	}
	stats, err := h.cache.Stats(r.Context())
	if err != nil {
		h.fail(w, r, "read cache stats", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), "forensic cache admin failed",
		"request_id", requestcontext.RequestID(r.Context()),
		"op", op,
		"error", err,
	)
	httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+op))
}
