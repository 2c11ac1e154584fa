// Package reconcile runs lookups for every distinct case id in an input table
// across a bounded worker pool and merges the outcomes back into the table.
package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/case-reconcile/internal/model"
	"github.com/sells-group/case-reconcile/internal/normalize"
	"github.com/sells-group/case-reconcile/internal/resilience"
	"github.com/sells-group/case-reconcile/internal/resolver"
	"github.com/sells-group/case-reconcile/internal/tabular"
)

var (
	// ErrLoad wraps failures to read the input file. No output is written.
	ErrLoad = eris.New("failed to load input file")
	// ErrWrite wraps failures to write the output file. The run itself
	// still counts as complete.
	ErrWrite = eris.New("failed to write output file")
)

// DefaultBackoff is the pause between attempts when Options.Backoff is zero.
const DefaultBackoff = time.Second

// Options configures RunProcess. Zero values take the documented defaults:
// DefaultWorkers workers, three attempts and DefaultBackoff between them. A
// negative Backoff retries without pausing.
type Options struct {
	Resolver resolver.Resolver
	Logger   *zap.Logger

	Workers        int
	MaxAttempts    int
	Backoff        time.Duration
	AttemptTimeout time.Duration
	Sleep          func(ctx context.Context, d time.Duration) error

	Synonyms normalize.Synonyms
	Charset  string
	Sheet    string

	// Now supplies the run date; defaults to time.Now.
	Now func() time.Time
	// OnResult observes every merged result.
	OnResult func(model.LookupResult)
}

// Summary describes a finished run.
type Summary struct {
	InputPath  string               `json:"input_path"`
	OutputPath string               `json:"output_path"`
	Rows       int                  `json:"rows"`
	Missing    int                  `json:"missing"`
	Stats      Stats                `json:"stats"`
	Results    []model.LookupResult `json:"results"`
	RunDate    string               `json:"run_date"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Written    bool                 `json:"written"`
	Cancelled  bool                 `json:"cancelled"`
	WriteErr   error                `json:"-"`
}

// Elapsed returns the wall time of the run.
func (s *Summary) Elapsed() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Status maps the summary onto a persisted run status. A write failure does
// not fail the run; it is carried in the run's error text.
func (s *Summary) Status() model.RunStatus {
	if s.Cancelled {
		return model.RunStatusCancelled
	}
	return model.RunStatusComplete
}

// Run converts the summary into a history row.
func (s *Summary) Run(id string) model.Run {
	run := model.Run{
		ID:         id,
		InputPath:  s.InputPath,
		OutputPath: s.OutputPath,
		Status:     s.Status(),
		Rows:       s.Rows,
		Submitted:  s.Stats.Submitted,
		Found:      s.Stats.Found,
		NotFound:   s.Stats.NotFound,
		Failed:     s.Stats.Failed,
		Abandoned:  s.Stats.Abandoned + s.Stats.Discarded,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
	if s.WriteErr != nil {
		run.Error = s.WriteErr.Error()
	}
	return run
}

// Outcomes converts merged results into per-case history rows.
func (s *Summary) Outcomes(runID string) []model.RecordOutcome {
	out := make([]model.RecordOutcome, 0, len(s.Results))
	for _, r := range s.Results {
		oc := model.RecordOutcome{
			RunID:    runID,
			CaseID:   r.Task.CaseID,
			RowIndex: r.Task.RowIndex,
			Name:     fullName(r.Task),
			Outcome:  r.Outcome,
			Attempts: r.Attempts,
			Reason:   r.Reason,
		}
		if r.Outcome == model.OutcomeFailed {
			if r.Reason == ReasonExhaustedRetries {
				oc.ErrorType = "transient"
			} else {
				oc.ErrorType = "permanent"
			}
		}
		out = append(out, oc)
	}
	return out
}

// RunProcess loads input, resolves every distinct case id and writes the
// enriched table to output exactly once. Load and schema errors are
// returned before any lookup starts. Record-level faults and cancellation
// never fail the run: a cancelled run still writes every row. A write
// failure is logged and reported through Summary.WriteErr.
func RunProcess(ctx context.Context, input, output string, opts Options) (*Summary, error) {
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	if opts.Resolver == nil {
		return nil, eris.New("reconcile: resolver is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	start := now()
	sum := &Summary{InputPath: input, OutputPath: output, StartedAt: start}

	// Loading is not a cancellation point.
	raw, err := tabular.Load(context.WithoutCancel(ctx), input, tabular.Options{
		Charset: opts.Charset,
		Sheet:   opts.Sheet,
	})
	if err != nil {
		log.Error("failed to load data from file", zap.String("input", input), zap.Error(err))
		return nil, eris.Wrap(err, ErrLoad.Error())
	}
	log.Info("file loaded",
		zap.String("input", input),
		zap.String("format", string(raw.Format)),
		zap.Strings("columns", raw.Header),
		zap.Int("rows", len(raw.Rows)),
	)

	source, err := normalize.Normalize(raw, opts.Synonyms)
	if err != nil {
		log.Error("input schema rejected", zap.Strings("columns", raw.Header), zap.Error(err))
		return nil, err
	}
	stats := normalize.Summarize(source)
	sum.Rows = stats.Rows
	sum.Missing = stats.Missing

	if source.Len() == 0 {
		log.Warn("no data to write", zap.String("input", input))
		sum.FinishedAt = now()
		return sum, nil
	}

	working := source.Clone()
	rec := NewReconciler(working, start, log)
	sum.RunDate = rec.RunDate()

	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := opts.Backoff
	switch {
	case backoff == 0:
		backoff = DefaultBackoff
	case backoff < 0:
		backoff = 0
	}
	sched := &Scheduler{
		Worker: &Worker{
			Resolver:       opts.Resolver,
			MaxAttempts:    attempts,
			Backoff:        backoff,
			AttemptTimeout: opts.AttemptTimeout,
			Sleep:          opts.Sleep,
			Logger:         log,
		},
		Workers: opts.Workers,
		Logger:  log,
		OnResult: func(r model.LookupResult) {
			sum.Results = append(sum.Results, r)
			if opts.OnResult != nil {
				opts.OnResult(r)
			}
		},
	}

	log.Info("starting lookups",
		zap.Int("rows", stats.Rows),
		zap.Int("unique_case_ids", stats.Unique),
		zap.Int("duplicate_rows", stats.Duplicates),
		zap.Int("missing_case_ids", stats.Missing),
	)
	sum.Stats = sched.Run(ctx, source, rec)
	sum.Cancelled = sum.Stats.Cancelled || ctx.Err() != nil

	if err := write(output, working); err != nil {
		sum.WriteErr = eris.Wrap(err, ErrWrite.Error())
		log.Error("error writing output file",
			zap.String("output", output),
			zap.String("error_type", resilience.ClassifyError(err)),
			zap.Error(err),
		)
	} else {
		sum.Written = true
		abs, _ := filepath.Abs(output)
		log.Info("output file created", zap.String("path", abs), zap.Int("rows", working.Len()))
	}

	sum.FinishedAt = now()
	elapsed := sum.Elapsed()
	log.Info("run finished",
		zap.Bool("cancelled", sum.Cancelled),
		zap.Int("submitted", sum.Stats.Submitted),
		zap.Int("found", sum.Stats.Found),
		zap.Int("not_found", sum.Stats.NotFound),
		zap.Int("failed", sum.Stats.Failed),
		zap.Int("abandoned", sum.Stats.Abandoned+sum.Stats.Discarded),
		zap.String("elapsed", fmt.Sprintf("%d minutes and %d seconds",
			int(elapsed.Minutes()), int(elapsed.Seconds())%60)),
	)
	return sum, nil
}

// write emits the working dataset as CSV whatever the output extension.
func write(output string, ds *model.Dataset) error {
	if strings.EqualFold(filepath.Ext(output), ".xlsx") {
		tabular.WriteXLSX(output, ds.Header(), ds.Rows())
	}
	return tabular.WriteCSV(output, ds.Header(), ds.Rows())
}
