// Package httptransport assembles the chi router: the shared middleware chain,
// role gates, and the module handlers.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	batchhandler "docgate/internal/batch/handler"
	dochandler "docgate/internal/document/handler"
	cachehandler "docgate/internal/forensiccache/handler"
	intakehandler "docgate/internal/intake/handler"
	"docgate/internal/platform/metrics"
	"docgate/internal/ratelimit"
	reviewhandler "docgate/internal/review/handler"
	id "docgate/pkg/domain"
	"docgate/pkg/platform/middleware/admin"
	"docgate/pkg/platform/middleware/auth"
	"docgate/pkg/platform/middleware/metadata"
	"docgate/pkg/platform/middleware/request"
	"docgate/pkg/platform/middleware/requesttime"
)

// Handlers are the module handlers the router mounts.
type Handlers struct {
	Intake   *intakehandler.Handler
	Document *dochandler.Handler
	Review   *reviewhandler.Handler
	Batch    *batchhandler.Handler
	Cache    *cachehandler.Handler
}

type Config struct {
	AllowedOrigins []string
	// AdminToken additionally gates /admin routes when non-empty.
	AdminToken    string
	HealthTimeout time.Duration
	// Limiter throttles uploads and batches per caller when non-nil.
	Limiter    *ratelimit.Middleware
	UploadRule ratelimit.Rule
	BatchRule  ratelimit.Rule
}

// NewRouter wires every public route behind the request middleware chain.
func NewRouter(cfg Config, h Handlers, validator auth.JWTValidator, checks []HealthCheck, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(request.RequestID)
	r.Use(request.Recovery(logger))
	r.Use(request.Logger(logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	if m != nil {
		r.Use(m.Middleware)
	}
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", request.HeaderRequestID, batchhandler.HeaderIdempotencyKey},
			ExposedHeaders:   []string{request.HeaderRequestID},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", healthHandler(checks, cfg.HealthTimeout, logger))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(validator, logger))

		h.Document.Register(r)
		r.Group(func(r chi.Router) {
			if cfg.Limiter != nil {
				r.Use(cfg.Limiter.Limit("upload", cfg.UploadRule))
			}
			h.Intake.Register(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(logger, id.RoleMaker))
			h.Review.Register(r)
			r.Group(func(r chi.Router) {
				if cfg.Limiter != nil {
					r.Use(cfg.Limiter.Limit("batch", cfg.BatchRule))
				}
				h.Batch.Register(r)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(logger, id.RoleVerifier))
			h.Document.RegisterVerifier(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(logger, id.RoleAdmin))
			if cfg.AdminToken != "" {
				r.Use(admin.RequireAdminToken(cfg.AdminToken, logger))
			}
			h.Cache.Register(r)
		})
	})

	return r
}
