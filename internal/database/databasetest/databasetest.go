// Package databasetest starts a migrated PostgreSQL container for tests.
package databasetest

import (
	"context"
	"testing"
	"time"

	"storefront/internal/database"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Container starts postgres:16-alpine and returns its connection string.
// The container is terminated when the test finishes.
func Container(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(ctx)
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	return connStr
}

// Setup starts a container, applies every migration and returns a pool.
func Setup(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()

	connStr := Container(t)
	require.NoError(t, database.Migrate(connStr, zerolog.Nop()))

	pool, err := database.Open(context.Background(), connStr, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool, connStr
}

// Truncate empties every application table.
func Truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		`TRUNCATE outbox_events, order_line_items, orders, provisional_orders, products RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}
