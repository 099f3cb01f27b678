package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	dErrors "docgate/pkg/domain-errors"
	"docgate/pkg/platform/httputil"
	"docgate/pkg/requestcontext"
)

// Middleware applies rules per authenticated caller, falling back to the
// client IP. Limiter failures let the request through.
type Middleware struct {
	limiter  Limiter
	logger   *slog.Logger
	metrics  *Metrics
	disabled bool
}

type Option func(*Middleware)

func WithMetrics(m *Metrics) Option {
	return func(mw *Middleware) { mw.metrics = m }
}

// WithDisabled turns every Limit into a passthrough.
func WithDisabled(disabled bool) Option {
	return func(mw *Middleware) { mw.disabled = disabled }
}

func NewMiddleware(limiter Limiter, logger *slog.Logger, opts ...Option) *Middleware {
	mw := &Middleware{limiter: limiter, logger: logger}
	for _, opt := range opts {
		opt(mw)
	}
	if mw.disabled {
		logger.Info("rate limiting disabled")
	}
	return mw
}

// Limit returns middleware enforcing rule for the named request class.
func (m *Middleware) Limit(class string, rule Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled || rule.Limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			key := class + ":" + callerKey(r)

			res, err := m.limiter.Allow(ctx, key, rule)
			if err != nil {
				m.metrics.incErrors()
				m.logger.WarnContext(ctx, "rate limiter unavailable",
					"class", class,
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}
			m.metrics.observe(class, res.Allowed)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				seconds := strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds())))
				w.Header().Set("Retry-After", seconds)
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, try again later").
					WithDetail("retry_after", seconds))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func callerKey(r *http.Request) string {
	ctx := r.Context()
	if p, ok := requestcontext.PrincipalFrom(ctx); ok && !p.UserID.IsNil() {
		return "user:" + p.UserID.String()
	}
	return "ip:" + requestcontext.ClientIP(ctx)
}
