package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/case-reconcile/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_RunRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run := &model.Run{InputPath: "in.csv", OutputPath: "out.csv"}
	require.NoError(t, st.CreateRun(ctx, run))
	require.NotEmpty(t, run.ID)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, got.Status)
	assert.Equal(t, "in.csv", got.InputPath)
	assert.True(t, got.FinishedAt.IsZero())

	run.Status = model.RunStatusCancelled
	run.Rows = 10
	run.Submitted = 4
	run.Found = 2
	run.NotFound = 1
	run.Abandoned = 1
	run.Error = "write failed"
	run.FinishedAt = run.StartedAt.Add(90 * time.Second)
	require.NoError(t, st.FinishRun(ctx, *run))

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCancelled, got.Status)
	assert.Equal(t, 10, got.Rows)
	assert.Equal(t, 4, got.Submitted)
	assert.Equal(t, 2, got.Found)
	assert.Equal(t, 1, got.NotFound)
	assert.Equal(t, 1, got.Abandoned)
	assert.Equal(t, "write failed", got.Error)
	assert.WithinDuration(t, run.FinishedAt, got.FinishedAt, time.Second)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestSQLite_FinishRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.FinishRun(context.Background(), model.Run{ID: "nope", Status: model.RunStatusComplete})
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, status := range []model.RunStatus{model.RunStatusComplete, model.RunStatusCancelled, model.RunStatusComplete} {
		run := &model.Run{InputPath: "in.csv", OutputPath: "out.csv", StartedAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, st.CreateRun(ctx, run))
		run.Status = status
		require.NoError(t, st.FinishRun(ctx, *run))
	}

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	assert.True(t, all[0].StartedAt.After(all[1].StartedAt))

	cancelled, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusCancelled})
	require.NoError(t, err)
	assert.Len(t, cancelled, 1)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, all[1].ID, limited[0].ID)

	none, err := st.ListRuns(ctx, RunFilter{InputPath: "other.csv"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_Outcomes(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run := &model.Run{InputPath: "in.csv", OutputPath: "out.csv"}
	require.NoError(t, st.CreateRun(ctx, run))

	require.NoError(t, st.RecordOutcomes(ctx, run.ID, nil))
	require.NoError(t, st.RecordOutcomes(ctx, run.ID, []model.RecordOutcome{
		{CaseID: "00000002", RowIndex: 3, Name: "Bob Ray", Outcome: model.OutcomeFailed, Attempts: 3,
			Reason: "exhausted retries", ErrorType: "transient"},
		{CaseID: "00000001", RowIndex: 0, Name: "Ann Lee", Outcome: model.OutcomeFound, Attempts: 1},
	}))

	out, err := st.ListOutcomes(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "00000001", out[0].CaseID)
	assert.Equal(t, run.ID, out[0].RunID)
	assert.Equal(t, model.OutcomeFailed, out[1].Outcome)
	assert.Equal(t, 3, out[1].Attempts)
	assert.Equal(t, "transient", out[1].ErrorType)

	other, err := st.ListOutcomes(ctx, "other-run")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}
