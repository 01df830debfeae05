package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/kursadbilgin/notify-daemon/internal/infra/postgresql"
	"github.com/kursadbilgin/notify-daemon/internal/infra/postgresql/migrations"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

// SkipUnlessDocker skips integration tests under -short or without a container runtime.
func SkipUnlessDocker(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
}

// SetupTestDatabase starts a throwaway Postgres, migrates it and returns a pool.
func SetupTestDatabase(t *testing.T, ctx context.Context) (testcontainers.Container, *gorm.DB) {
	t.Helper()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("notify_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := postgresql.NewPostgres(connStr, postgresql.PoolOptions{MaxOpenConns: 20})
	require.NoError(t, err)

	require.NoError(t, migrations.Migrate(db))

	return pgContainer, db
}

func CleanupTestDatabase(t *testing.T, ctx context.Context, container testcontainers.Container, db *gorm.DB) {
	t.Helper()

	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if container != nil {
		require.NoError(t, container.Terminate(ctx))
	}
}

func TruncateClients(t *testing.T, ctx context.Context, db *gorm.DB) {
	t.Helper()

	require.NoError(t, db.WithContext(ctx).Exec("TRUNCATE TABLE clients RESTART IDENTITY").Error)
}
