package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"docgate/internal/platform/httpserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with the outbox relay, expiry sweep and issuance reconciler",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.db != nil {
			applied, err := migrate(ctx, a)
			if err != nil {
				return err
			}
			log.InfoContext(ctx, "migrations applied", "count", len(applied))
		}
		if a.producer != nil {
			if err := a.producer.EnsureTopic(ctx, cfg.Kafka.AuditTopic, cfg.Kafka.Partitions); err != nil {
				return err
			}
		}

		srv := httpserver.New(cfg.Server.Addr, a.router, cfg.Server.ReadHeaderTimeout)
		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			log.Info("starting docgate", "addr", cfg.Server.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			log.Info("shutting down")
			return srv.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			return a.reconciler.Run(gctx)
		})
		g.Go(func() error {
			return sweepLoop(gctx, a, cfg.Document.ExpirySweepInterval)
		})
		if a.relay != nil {
			g.Go(func() error {
				if err := a.relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		}

		return g.Wait()
	},
}

// sweepLoop expires overdue documents on every tick. Failures are logged and
// retried on the next tick.
func sweepLoop(ctx context.Context, a *app, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := a.documents.ExpireDue(ctx)
			if err != nil {
				a.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "expired documents", "count", n)
			}
		}
	}
}
