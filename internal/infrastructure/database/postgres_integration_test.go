package database

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/query-tools/utils/platformerrors"
)

// Runs against a real PostgreSQL when QUERY_TOOLS_TEST_DSN is set.
func newIntegrationManager(t *testing.T) *Manager {
	t.Helper()
	dsn := os.Getenv("QUERY_TOOLS_TEST_DSN")
	if dsn == "" {
		t.Skip("QUERY_TOOLS_TEST_DSN not set")
	}
	mgr := NewManager(NewPostgresOpener(PoolConfig{DSN: dsn, MaxConns: 4, ConnectTimeout: 5 * time.Second}), Identity(dsn), 10*time.Second)
	t.Cleanup(mgr.Close)
	return mgr
}

func TestPostgresWriteThenReadRoundTrip(t *testing.T) {
	mgr := newIntegrationManager(t)
	ctx := context.Background()
	table := "qt_roundtrip_" + uuid.NewString()[:8]

	_, err := mgr.RunWrite(ctx, fmt.Sprintf("CREATE TABLE %s (id serial PRIMARY KEY, label text NOT NULL)", table), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = mgr.RunWrite(context.Background(), "DROP TABLE IF EXISTS "+table, nil) })

	const n = 5
	effects, err := mgr.RunWrite(ctx, fmt.Sprintf("INSERT INTO %s (label) SELECT 'row ' || g FROM generate_series(1, @n::int) g", table), map[string]any{"n": n})
	require.NoError(t, err)
	assert.EqualValues(t, n, effects.RowsCreated)

	rows, err := mgr.RunRead(ctx, fmt.Sprintf("SELECT count(*) AS total FROM %s", table), nil)
	require.NoError(t, err)
	require.Len(t, rows.Values, 1)
	assert.Equal(t, []string{"total"}, rows.Columns)
	assert.EqualValues(t, n, rows.Values[0][0])

	snap, err := mgr.Introspect(ctx)
	require.NoError(t, err)
	assert.True(t, snap.HasEntity(table))
	assert.Contains(t, snap.Entities[table].Fields, "label")
}

func TestPostgresReadTransactionRejectsMutation(t *testing.T) {
	mgr := newIntegrationManager(t)

	_, err := mgr.RunRead(context.Background(), "CREATE TABLE qt_should_not_exist (id int)", nil)

	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeExecution))
	var perr *platformerrors.PlatformError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "25006", perr.Context["sqlstate"])
}
