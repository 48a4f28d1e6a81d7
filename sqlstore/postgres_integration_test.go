//go:build integration

package sqlstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/deepnoodle-ai/invoiceflow"
	"github.com/deepnoodle-ai/invoiceflow/internal/storetest"
	"github.com/deepnoodle-ai/invoiceflow/sqlstore"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres runs a Postgres container for the duration of the test and
// returns its connection string.
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("invoiceflow_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(t)

	storetest.Run(t, func(t *testing.T) invoiceflow.Store {
		store, err := sqlstore.Open(ctx, "postgres", dsn)
		require.NoError(t, err)
		for _, table := range []string{"instances", "checkpoints", "reviews"} {
			_, err := store.DB().ExecContext(ctx, "TRUNCATE "+table)
			require.NoError(t, err)
		}
		t.Cleanup(func() { store.Close() })
		return store
	})
}
