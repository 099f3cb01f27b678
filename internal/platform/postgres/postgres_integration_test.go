//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docgate/internal/platform/postgres"
	"docgate/pkg/testutil/containers"
)

func TestMigrate_IsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()

	_, err := postgres.Migrate(ctx, pg.DB)
	require.NoError(t, err)

	again, err := postgres.Migrate(ctx, pg.DB)
	require.NoError(t, err)
	assert.Empty(t, again)

	var n int
	require.NoError(t, pg.DB.QueryRowContext(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 4, n)
}
