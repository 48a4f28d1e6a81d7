package sqlstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/deepnoodle-ai/invoiceflow"
	"github.com/deepnoodle-ai/invoiceflow/internal/storetest"
	"github.com/deepnoodle-ai/invoiceflow/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func openSQLite(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlstore.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "invoiceflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) invoiceflow.Store {
		return openSQLite(t)
	})
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "invoiceflow.db")

	store, err := sqlstore.Open(ctx, "sqlite", path)
	require.NoError(t, err)
	inst := storetest.Instance("inv_a", testTime)
	require.NoError(t, store.CreateInstance(ctx, inst))
	require.NoError(t, store.PutCheckpoint(ctx, storetest.Checkpoint("ckpt_1", "inv_a", testTime)))
	require.NoError(t, store.Close())

	reopened, err := sqlstore.Open(ctx, "sqlite", path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetInstance(ctx, "inv_a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	_, err = reopened.GetCheckpoint(ctx, "ckpt_1")
	require.NoError(t, err)
}

func TestOpenUnknownDialect(t *testing.T) {
	_, err := sqlstore.Open(context.Background(), "oracle", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported sql dialect "oracle"`)
}
