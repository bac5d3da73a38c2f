//go:build integration

package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"cleansight/pkg/database"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// startPostgres reuses TEST_DATABASE_URL when set, otherwise starts a disposable container
func startPostgres(t *testing.T) *database.PostgresDB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		container, err := postgres.Run(ctx,
			"postgres:16",
			postgres.WithDatabase("cleansight"),
			postgres.WithUsername("cleansight"),
			postgres.WithPassword("cleansight"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = container.Terminate(context.Background()) })

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	db, err := database.NewPostgresDB(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.Drop(ctx))
	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestPostgresRepositories(t *testing.T) {
	db := startPostgres(t)

	t.Run("profiles", func(t *testing.T) {
		profileRepositoryContract(t, NewProfileRepository(db))
	})
	t.Run("accounts", func(t *testing.T) {
		accountRepositoryContract(t, NewAccountRepository(db))
	})
}
