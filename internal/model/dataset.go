package model

// Dataset is an ordered set of records plus the column set they align with.
// Records[i].RowIndex == i for every dataset built by the normalizer.
type Dataset struct {
	Columns []Column `json:"columns"`
	Records []Record `json:"records"`
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// Header returns the column names in order.
func (d *Dataset) Header() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of the column with the given canonical key,
// or -1.
func (d *Dataset) ColumnIndex(key string) int {
	for i, c := range d.Columns {
		if c.Key == key {
			return i
		}
	}
	return -1
}

// Get returns the value of key in row, or "" when either is out of range.
func (d *Dataset) Get(row int, key string) string {
	if row < 0 || row >= len(d.Records) {
		return ""
	}
	idx := d.ColumnIndex(key)
	vals := d.Records[row].Values
	if idx < 0 || idx >= len(vals) {
		return ""
	}
	return vals[idx]
}

// Set writes value into the key column of row. It reports false when the row
// or column does not exist; the dataset shape never changes.
func (d *Dataset) Set(row int, key, value string) bool {
	if row < 0 || row >= len(d.Records) {
		return false
	}
	idx := d.ColumnIndex(key)
	if idx < 0 {
		return false
	}
	rec := &d.Records[row]
	for len(rec.Values) < len(d.Columns) {
		rec.Values = append(rec.Values, "")
	}
	rec.Values[idx] = value
	return true
}

// Clone returns a deep copy that shares no slices with d.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	out := &Dataset{
		Columns: append([]Column(nil), d.Columns...),
		Records: make([]Record, len(d.Records)),
	}
	for i, r := range d.Records {
		r.Values = append([]string(nil), r.Values...)
		out.Records[i] = r
	}
	return out
}

// Rows returns the row values padded to the column count.
func (d *Dataset) Rows() [][]string {
	out := make([][]string, len(d.Records))
	for i, r := range d.Records {
		row := make([]string, len(d.Columns))
		copy(row, r.Values)
		out[i] = row
	}
	return out
}
