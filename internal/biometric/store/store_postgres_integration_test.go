//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"docgate/internal/biometric"
	"docgate/internal/biometric/store"
	"docgate/internal/platform/postgres"
	id "docgate/pkg/domain"
	dErrors "docgate/pkg/domain-errors"
	"docgate/pkg/platform/sentinel"
	txcontext "docgate/pkg/platform/tx"
	"docgate/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	_, err := postgres.Migrate(context.Background(), s.postgres.DB)
	s.Require().NoError(err)
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "biometric_identities"))
}

// TestUniqueHashAcrossUsers verifies the unique index surfaces as ErrConflict.
func (s *PostgresStoreSuite) TestUniqueHashAcrossUsers() {
	ctx := context.Background()
	alice := id.UserID(uuid.New())
	bob := id.UserID(uuid.New())

	outcome, err := s.store.Save(ctx, &biometric.Identity{UserID: alice, BiometricHash: "abc", CreatedAt: time.Now()})
	s.Require().NoError(err)
	s.Equal(biometric.SaveStored, outcome)
	outcome, err = s.store.Save(ctx, &biometric.Identity{UserID: alice, BiometricHash: "abc", CreatedAt: time.Now()})
	s.Require().NoError(err)
	s.Equal(biometric.SaveUnchanged, outcome)

	_, err = s.store.Save(ctx, &biometric.Identity{UserID: bob, BiometricHash: "abc", CreatedAt: time.Now()})
	s.ErrorIs(err, sentinel.ErrConflict)

	got, err := s.store.FindByHash(ctx, "abc")
	s.Require().NoError(err)
	s.Equal(alice, got.UserID)
}

// TestUserWithDifferentHash verifies a second hash for the same user is
// reported and the first one kept.
func (s *PostgresStoreSuite) TestUserWithDifferentHash() {
	ctx := context.Background()
	alice := id.UserID(uuid.New())

	_, err := s.store.Save(ctx, &biometric.Identity{UserID: alice, BiometricHash: "h1", CreatedAt: time.Now()})
	s.Require().NoError(err)

	outcome, err := s.store.Save(ctx, &biometric.Identity{UserID: alice, BiometricHash: "h2", CreatedAt: time.Now()})
	s.Require().NoError(err)
	s.Equal(biometric.SaveUserMismatch, outcome)

	_, err = s.store.FindByHash(ctx, "h2")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConflictInsideTransaction verifies a hash collision leaves the
// enclosing transaction usable, so the gate reports DuplicateIdentity rather
// than an aborted-transaction failure.
func (s *PostgresStoreSuite) TestConflictInsideTransaction() {
	ctx := context.Background()
	alice := id.UserID(uuid.New())
	bob := id.UserID(uuid.New())

	_, err := s.store.Save(ctx, &biometric.Identity{UserID: alice, BiometricHash: "shared", CreatedAt: time.Now()})
	s.Require().NoError(err)

	tx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	defer func() { _ = tx.Rollback() }()
	txCtx := txcontext.WithTx(ctx, tx)

	_, err = s.store.Save(txCtx, &biometric.Identity{UserID: bob, BiometricHash: "shared", CreatedAt: time.Now()})
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	got, err := s.store.FindByHash(txCtx, "shared")
	s.Require().NoError(err)
	s.Equal(alice, got.UserID)

	gate, err := biometric.NewGate(s.store, []byte("integration-key"))
	s.Require().NoError(err)
	_, err = gate.StoreBiometricData(txCtx, bob, biometric.Data{FeatureCount: 3}, "shared")
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateIdentity))

	var one int
	s.Require().NoError(tx.QueryRowContext(ctx, "SELECT 1").Scan(&one))
	s.Require().NoError(tx.Commit())
}

func (s *PostgresStoreSuite) TestFindByHash_NotFound() {
	_, err := s.store.FindByHash(context.Background(), "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
