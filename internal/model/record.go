package model

// Canonical column keys. Input headers are trimmed, lowercased and mapped
// onto these through the normalizer's synonym table.
const (
	KeyCaseID       = "caseId"
	KeyFirstName    = "firstName"
	KeyLastName     = "lastName"
	KeyLocation     = "location"
	KeyStatus       = "status"
	KeyReleaseDate  = "release date"
	KeyDateOfSearch = "date of search"
	KeyName         = "name"
)

// MissingCaseID marks a row whose identifier was absent or unparseable.
// Rows carrying it pass through untouched and are never looked up.
const MissingCaseID = "MISSING"

// EnrichmentDefault fills enrichment columns that the input did not carry.
const EnrichmentDefault = "N/A"

// EnrichmentKeys lists the columns a run may mutate, in the order they are
// appended when absent from the input.
func EnrichmentKeys() []string {
	return []string{KeyLocation, KeyStatus, KeyReleaseDate, KeyDateOfSearch}
}

// ResolvedKeys lists the enrichment columns a successful lookup supplies.
func ResolvedKeys() []string {
	return []string{KeyLocation, KeyStatus, KeyReleaseDate}
}

// Column is one input column: the header text as read plus its canonical key.
type Column struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// Record is one input row.
type Record struct {
	RowIndex  int      `json:"row_index"`
	CaseID    string   `json:"case_id"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Values    []string `json:"values"`
}

// HasCaseID reports whether the record carries a usable identifier.
func (r Record) HasCaseID() bool {
	return r.CaseID != "" && r.CaseID != MissingCaseID
}

// FullName joins first and last name for log lines.
func (r Record) FullName() string {
	switch {
	case r.FirstName == "":
		return r.LastName
	case r.LastName == "":
		return r.FirstName
	default:
		return r.FirstName + " " + r.LastName
	}
}

// Task is one unit of lookup work bound to the first row carrying CaseID.
// Duplicates holds the later rows that share the same identifier.
type Task struct {
	RowIndex   int    `json:"row_index"`
	CaseID     string `json:"case_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Duplicates []int  `json:"duplicates,omitempty"`
}

// Rows returns every row index the task's outcome applies to.
func (t Task) Rows() []int {
	rows := make([]int, 0, 1+len(t.Duplicates))
	rows = append(rows, t.RowIndex)
	return append(rows, t.Duplicates...)
}
