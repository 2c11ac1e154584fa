package reconcile

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/case-reconcile/internal/model"
)

// RunDateLayout formats the date-of-search stamp.
const RunDateLayout = "2006-01-02"

// Reconciler merges lookup outcomes into the working dataset. It is not
// safe for concurrent use: only the goroutine draining completions calls it.
type Reconciler struct {
	working   *model.Dataset
	runDate   string
	processed map[string]struct{}
	log       *zap.Logger
}

// NewReconciler wraps the working dataset. runDate is formatted once and
// shared by every row stamped during the run.
func NewReconciler(working *model.Dataset, runDate time.Time, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.L()
	}
	return &Reconciler{
		working:   working,
		runDate:   runDate.Format(RunDateLayout),
		processed: make(map[string]struct{}),
		log:       log,
	}
}

// Merge applies result to the task's row and its duplicates. Found results
// overwrite the resolved columns; every other outcome keeps existing values.
// All merged rows get the date-of-search stamp. A case id is merged at most
// once; abandoned results are ignored.
func (r *Reconciler) Merge(task model.Task, result model.LookupResult) {
	if !result.Merged() {
		return
	}
	if _, done := r.processed[task.CaseID]; done {
		r.log.Debug("result already merged", zap.String("case_id", task.CaseID))
		return
	}
	r.processed[task.CaseID] = struct{}{}

	name := fullName(task)
	for _, row := range task.Rows() {
		if result.Outcome == model.OutcomeFound {
			for _, key := range model.ResolvedKeys() {
				if v, ok := result.Fields[key]; ok {
					r.working.Set(row, key, v)
				}
			}
		}
		r.working.Set(row, model.KeyDateOfSearch, r.runDate)
	}

	fields := []zap.Field{
		zap.String("case_id", task.CaseID),
		zap.String("name", name),
		zap.Int("row", task.RowIndex),
		zap.Ints("duplicates", task.Duplicates),
		zap.Int("attempts", result.Attempts),
	}
	switch result.Outcome {
	case model.OutcomeFound:
		if resolved := result.Fields[model.KeyName]; resolved != "" {
			fields = append(fields, zap.String("resolved_name", resolved))
		}
		r.log.Info("record updated", fields...)
	case model.OutcomeNotFound:
		r.log.Info("record not found, data retained as original", fields...)
	default:
		r.log.Warn("record lookup failed, data retained as original",
			append(fields, zap.String("reason", result.Reason))...)
	}
}

// Processed reports whether caseID has been merged.
func (r *Reconciler) Processed(caseID string) bool {
	_, ok := r.processed[caseID]
	return ok
}

// ProcessedCount returns the number of merged case ids.
func (r *Reconciler) ProcessedCount() int {
	return len(r.processed)
}

// RunDate returns the date-of-search stamp.
func (r *Reconciler) RunDate() string {
	return r.runDate
}

// Dataset returns the working dataset.
func (r *Reconciler) Dataset() *model.Dataset {
	return r.working
}
