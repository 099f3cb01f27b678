package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"docgate/pkg/platform/httputil"
	"docgate/pkg/requestcontext"
)

const defaultHealthTimeout = 2 * time.Second

// HealthCheck pings one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// healthHandler runs every check concurrently under one short timeout and
// answers 503 when any fails.
func healthHandler(checks []HealthCheck, timeout time.Duration, logger *slog.Logger) http.HandlerFunc {
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		// A plain Group: one failing dependency must not cancel the others.
		var g errgroup.Group
		statuses := make([]string, len(checks))
		for i, c := range checks {
			g.Go(func() error {
				statuses[i] = "ok"
				if err := c.Check(ctx); err != nil {
					statuses[i] = "unavailable"
					logger.WarnContext(ctx, "health check failed",
						"request_id", requestcontext.RequestID(ctx),
						"component", c.Name,
						"error", err,
					)
				}
				return nil
			})
		}
		_ = g.Wait()

		healthy := true
		components := make(map[string]string, len(checks))
		for i, c := range checks {
			components[c.Name] = statuses[i]
			if statuses[i] != "ok" {
				healthy = false
			}
		}

		if !healthy {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Components: components})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok", Components: components})
	}
}
