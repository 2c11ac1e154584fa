package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/case-reconcile/internal/config"
	"github.com/sells-group/case-reconcile/internal/model"
)

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	st, err := Open(ctx, config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "h.db")})
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	run := &model.Run{InputPath: "a.csv", OutputPath: "b.csv"}
	require.NoError(t, st.CreateRun(ctx, run))
	runs, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "mysql", DatabaseURL: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}

func TestStoreInterfaces(t *testing.T) {
	var _ Store = (*SQLiteStore)(nil)
	var _ Store = (*PostgresStore)(nil)
}
