// Package normalize turns a raw loaded table into a dataset with canonical
// column keys and canonical case ids.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/case-reconcile/internal/model"
	"github.com/sells-group/case-reconcile/internal/tabular"
)

// ErrSchema is returned when the table has no identifier column.
var ErrSchema = eris.New("required identifier column not found")

// caseIDWidth is the zero-padded width of a canonical case id.
const caseIDWidth = 8

// Normalize maps headers through syn, derives canonical case ids and appends
// any missing enrichment columns (default "N/A"). The raw table is not
// modified.
func Normalize(raw *tabular.Table, syn Synonyms) (*model.Dataset, error) {
	if raw == nil {
		return nil, eris.New("normalize: nil table")
	}
	if syn == nil {
		syn = DefaultSynonyms()
	}

	ds := &model.Dataset{Columns: make([]model.Column, 0, len(raw.Header)+len(model.EnrichmentKeys()))}
	seen := make(map[string]bool, len(raw.Header))
	for _, h := range raw.Header {
		key := syn.Key(h)
		// A repeated key keeps the first column; later ones stay passthrough.
		if seen[key] {
			key = fmt.Sprintf("%s#%d", key, len(ds.Columns))
		}
		seen[key] = true
		ds.Columns = append(ds.Columns, model.Column{Name: h, Key: key})
	}

	idIdx := ds.ColumnIndex(model.KeyCaseID)
	if idIdx < 0 {
		return nil, eris.Wrapf(ErrSchema, "normalize: no identifier column among %v", raw.Header)
	}

	var added []int
	for _, key := range model.EnrichmentKeys() {
		if ds.ColumnIndex(key) >= 0 {
			continue
		}
		added = append(added, len(ds.Columns))
		ds.Columns = append(ds.Columns, model.Column{Name: key, Key: key})
	}

	firstIdx := ds.ColumnIndex(model.KeyFirstName)
	lastIdx := ds.ColumnIndex(model.KeyLastName)

	ds.Records = make([]model.Record, len(raw.Rows))
	for i, row := range raw.Rows {
		values := make([]string, len(ds.Columns))
		copy(values, row)
		for _, idx := range added {
			values[idx] = model.EnrichmentDefault
		}
		ds.Records[i] = model.Record{
			RowIndex:  i,
			CaseID:    CanonicalCaseID(tabular.Cell(row, idIdx)),
			FirstName: strings.TrimSpace(tabular.Cell(row, firstIdx)),
			LastName:  strings.TrimSpace(tabular.Cell(row, lastIdx)),
			Values:    values,
		}
	}
	return ds, nil
}

// CanonicalCaseID parses raw as a number, truncates it to an integer and
// zero-pads it to eight digits. Empty or unparseable input yields
// model.MissingCaseID.
func CanonicalCaseID(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return model.MissingCaseID
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f >= 1e18 {
		return model.MissingCaseID
	}
	return fmt.Sprintf("%0*d", caseIDWidth, int64(math.Trunc(f)))
}

// Stats summarizes identifier quality for a dataset.
type Stats struct {
	Rows       int
	Missing    int
	Unique     int
	Duplicates int
}

// Summarize counts missing, unique and duplicate case ids.
func Summarize(ds *model.Dataset) Stats {
	st := Stats{Rows: ds.Len()}
	seen := make(map[string]bool, ds.Len())
	for _, r := range ds.Records {
		switch {
		case !r.HasCaseID():
			st.Missing++
		case seen[r.CaseID]:
			st.Duplicates++
		default:
			seen[r.CaseID] = true
			st.Unique++
		}
	}
	return st
}
