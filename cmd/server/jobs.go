package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "docgate/internal/jwt_token"
	"docgate/internal/platform/postgres"
	id "docgate/pkg/domain"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending PostgreSQL migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return fmt.Errorf("database.url is required")
		}
		a, err := newApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		applied, err := migrate(cmd.Context(), a)
		if err != nil {
			return err
		}
		for _, name := range applied {
			fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
		}
		return nil
	},
}

func migrate(ctx context.Context, a *app) ([]string, error) {
	applied, err := postgres.Migrate(ctx, a.db)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return applied, nil
}

var sweepExpiredCmd = &cobra.Command{
	Use:   "sweep-expired",
	Short: "Expire documents past their expiry date once and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			n, err := a.documents.ExpireDue(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d documents\n", n)
			return nil
		})
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile-issuance",
	Short: "Retry due pending issuances once and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			res, err := a.reconciler.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "attempted=%d issued=%d retrying=%d exhausted=%d\n",
				res.Attempted, res.Issued, res.Retrying, res.Exhausted)
			return nil
		})
	},
}

var purgeOlderThan time.Duration

var purgeCacheCmd = &cobra.Command{
	Use:   "purge-cache",
	Short: "Remove expired forensic cache entries and those cached before --older-than",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			n, err := a.cache.Purge(ctx, purgeOlderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d entries\n", n)
			return nil
		})
	},
}

var (
	tokenUser  string
	tokenRole  string
	tokenName  string
	tokenEmail string
	tokenTTL   time.Duration
)

// tokenCmd mints an access token signed with the configured key. Intended for
// local development against an instance without an identity provider.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development access token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		userID, err := id.ParseUserID(tokenUser)
		if err != nil {
			return err
		}
		role, err := id.ParseRole(tokenRole)
		if err != nil {
			return err
		}
		svc := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer)
		tok, err := svc.GenerateAccessToken(jwttoken.Subject{
			UserID: userID,
			Role:   role,
			Name:   tokenName,
			Email:  tokenEmail,
		}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	purgeCacheCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 0, "also purge entries cached at least this long ago")

	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id (UUID)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "citizen", "role: citizen, maker, verifier or admin")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email address")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
}

// withApp builds the app, runs fn and releases the app's connections.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}
