package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDataset() *Dataset {
	return &Dataset{
		Columns: []Column{
			{Name: "DOC Number", Key: KeyCaseID},
			{Name: "First Name", Key: KeyFirstName},
			{Name: "Location", Key: KeyLocation},
		},
		Records: []Record{
			{RowIndex: 0, CaseID: "00012345", FirstName: "Ann", Values: []string{"12345", "Ann", "N/A"}},
			{RowIndex: 1, CaseID: MissingCaseID, Values: []string{"", "Bob"}},
		},
	}
}

func TestDataset_GetSet(t *testing.T) {
	t.Parallel()

	ds := testDataset()
	assert.Equal(t, "N/A", ds.Get(0, KeyLocation))
	assert.Equal(t, "", ds.Get(1, KeyLocation))
	assert.Equal(t, "", ds.Get(5, KeyLocation))
	assert.Equal(t, "", ds.Get(0, "unknown"))

	require.True(t, ds.Set(1, KeyLocation, "SRCI"))
	assert.Equal(t, []string{"", "Bob", "SRCI"}, ds.Records[1].Values)

	assert.False(t, ds.Set(0, "unknown", "x"))
	assert.False(t, ds.Set(-1, KeyLocation, "x"))
}

func TestDataset_CloneIsDeep(t *testing.T) {
	t.Parallel()

	src := testDataset()
	work := src.Clone()
	require.True(t, work.Set(0, KeyLocation, "OSP"))

	assert.Equal(t, "N/A", src.Get(0, KeyLocation))
	assert.Equal(t, "OSP", work.Get(0, KeyLocation))
	assert.Equal(t, src.Header(), work.Header())
	assert.Equal(t, src.Len(), work.Len())
}

func TestDataset_RowsPadded(t *testing.T) {
	t.Parallel()

	rows := testDataset().Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"", "Bob", ""}, rows[1])
}

func TestDataset_NilLen(t *testing.T) {
	t.Parallel()

	var ds *Dataset
	assert.Equal(t, 0, ds.Len())
	assert.Nil(t, ds.Clone())
}

func TestRecord_FullName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Ann Lee", Record{FirstName: "Ann", LastName: "Lee"}.FullName())
	assert.Equal(t, "Lee", Record{LastName: "Lee"}.FullName())
	assert.Equal(t, "Ann", Record{FirstName: "Ann"}.FullName())
	assert.False(t, Record{CaseID: MissingCaseID}.HasCaseID())
	assert.True(t, Record{CaseID: "00000001"}.HasCaseID())
}

func TestTask_Rows(t *testing.T) {
	t.Parallel()

	task := Task{RowIndex: 2, Duplicates: []int{5, 9}}
	assert.Equal(t, []int{2, 5, 9}, task.Rows())
}

func TestLookupResult_Merged(t *testing.T) {
	t.Parallel()

	tests := []struct {
		outcome Outcome
		want    bool
	}{
		{OutcomeFound, true},
		{OutcomeNotFound, true},
		{OutcomeFailed, true},
		{OutcomeAbandoned, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, LookupResult{Outcome: tt.outcome}.Merged())
		})
	}
}
