package model

import "time"

// Outcome classifies the result of resolving one case id.
type Outcome string

const (
	OutcomeFound     Outcome = "found"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeFailed    Outcome = "failed"
	OutcomeAbandoned Outcome = "abandoned"
)

// Fields holds enrichment values keyed by canonical column key.
type Fields map[string]string

// LookupResult is what a worker hands back for one task.
type LookupResult struct {
	Task     Task    `json:"task"`
	Outcome  Outcome `json:"outcome"`
	Fields   Fields  `json:"fields,omitempty"`
	Reason   string  `json:"reason,omitempty"`
	Attempts int     `json:"attempts"`
}

// Merged reports whether the result must be reconciled into the dataset.
// Abandoned work is discarded.
func (r LookupResult) Merged() bool {
	return r.Outcome != OutcomeAbandoned
}

// RunStatus is the terminal state of a reconciliation run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusComplete  RunStatus = "complete"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one persisted reconciliation run.
type Run struct {
	ID         string    `json:"id"`
	InputPath  string    `json:"input_path"`
	OutputPath string    `json:"output_path"`
	Status     RunStatus `json:"status"`
	Rows       int       `json:"rows"`
	Submitted  int       `json:"submitted"`
	Found      int       `json:"found"`
	NotFound   int       `json:"not_found"`
	Failed     int       `json:"failed"`
	Abandoned  int       `json:"abandoned"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// RecordOutcome is the persisted outcome of one submitted case id.
type RecordOutcome struct {
	RunID     string  `json:"run_id"`
	CaseID    string  `json:"case_id"`
	RowIndex  int     `json:"row_index"`
	Name      string  `json:"name"`
	Outcome   Outcome `json:"outcome"`
	Attempts  int     `json:"attempts"`
	Reason    string  `json:"reason,omitempty"`
	ErrorType string  `json:"error_type,omitempty"`
}
