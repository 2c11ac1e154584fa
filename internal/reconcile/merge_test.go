package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/case-reconcile/internal/model"
)

func TestReconciler_FoundOverwritesTaskAndDuplicates(t *testing.T) {
	ds := testDataset("00000001", "00000002", "00000001")
	rec := NewReconciler(ds, runDate, zap.NewNop())
	task := Plan(ds)[0]

	rec.Merge(task, model.LookupResult{Task: task, Outcome: model.OutcomeFound, Fields: foundFields("00000001"), Attempts: 1})

	for _, row := range []int{0, 2} {
		assert.Equal(t, "LOC-00000001", ds.Get(row, model.KeyLocation))
		assert.Equal(t, "Inmate", ds.Get(row, model.KeyStatus))
		assert.Equal(t, "01/01/2030", ds.Get(row, model.KeyReleaseDate))
		assert.Equal(t, "2026-03-04", ds.Get(row, model.KeyDateOfSearch))
		assert.Equal(t, "note", ds.Get(row, "notes"))
	}
	assert.Equal(t, model.EnrichmentDefault, ds.Get(1, model.KeyDateOfSearch))
	assert.True(t, rec.Processed("00000001"))
	assert.False(t, rec.Processed("00000002"))
}

func TestReconciler_PartialFieldsOnlyTouchProvidedKeys(t *testing.T) {
	ds := testDataset("00000001")
	ds.Set(0, model.KeyReleaseDate, "12/31/2029")
	rec := NewReconciler(ds, runDate, zap.NewNop())
	task := Plan(ds)[0]

	rec.Merge(task, model.LookupResult{Task: task, Outcome: model.OutcomeFound, Fields: model.Fields{model.KeyStatus: "Released"}})

	assert.Equal(t, "Released", ds.Get(0, model.KeyStatus))
	assert.Equal(t, "12/31/2029", ds.Get(0, model.KeyReleaseDate))
}

func TestReconciler_NonFoundOutcomesOnlyStampDate(t *testing.T) {
	for _, outcome := range []model.Outcome{model.OutcomeNotFound, model.OutcomeFailed} {
		t.Run(string(outcome), func(t *testing.T) {
			ds := testDataset("00000001")
			ds.Set(0, model.KeyLocation, "OLD")
			before := ds.Clone()
			rec := NewReconciler(ds, runDate, zap.NewNop())
			task := Plan(ds)[0]

			rec.Merge(task, model.LookupResult{Task: task, Outcome: outcome, Fields: foundFields("00000001")})

			dateIdx := ds.ColumnIndex(model.KeyDateOfSearch)
			for i, v := range ds.Records[0].Values {
				if i == dateIdx {
					assert.Equal(t, "2026-03-04", v)
					continue
				}
				assert.Equal(t, before.Records[0].Values[i], v)
			}
			assert.True(t, rec.Processed("00000001"))
		})
	}
}

func TestReconciler_SecondMergeIgnored(t *testing.T) {
	ds := testDataset("00000001")
	rec := NewReconciler(ds, runDate, zap.NewNop())
	task := Plan(ds)[0]

	rec.Merge(task, model.LookupResult{Task: task, Outcome: model.OutcomeFound, Fields: foundFields("00000001")})
	rec.Merge(task, model.LookupResult{Task: task, Outcome: model.OutcomeFound, Fields: model.Fields{model.KeyLocation: "OTHER"}})

	assert.Equal(t, "LOC-00000001", ds.Get(0, model.KeyLocation))
	assert.Equal(t, 1, rec.ProcessedCount())
}

func TestReconciler_AbandonedIgnored(t *testing.T) {
	ds := testDataset("00000001")
	before := ds.Clone()
	rec := NewReconciler(ds, runDate, zap.NewNop())
	task := Plan(ds)[0]

	rec.Merge(task, model.LookupResult{Task: task, Outcome: model.OutcomeAbandoned})

	assert.Equal(t, before, ds)
	assert.False(t, rec.Processed("00000001"))
}

func TestReconciler_LogsOneLinePerMerge(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ds := testDataset("00000001", "00000002")
	rec := NewReconciler(ds, runDate, zap.New(core))
	tasks := Plan(ds)

	rec.Merge(tasks[0], model.LookupResult{Task: tasks[0], Outcome: model.OutcomeFound, Fields: foundFields("00000001")})
	rec.Merge(tasks[1], model.LookupResult{Task: tasks[1], Outcome: model.OutcomeFailed, Reason: ReasonExhaustedRetries})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "record updated", entries[0].Message)
	assert.Equal(t, "00000001", entries[0].ContextMap()["case_id"])
	assert.Equal(t, "FirstA Last", entries[0].ContextMap()["name"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, ReasonExhaustedRetries, entries[1].ContextMap()["reason"])
}

func TestReconciler_RunDateSharedByAllRows(t *testing.T) {
	rec := NewReconciler(testDataset(), runDate, nil)
	assert.Equal(t, "2026-03-04", rec.RunDate())
	assert.NotNil(t, rec.Dataset())
}
