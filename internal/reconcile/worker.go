package reconcile

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/case-reconcile/internal/model"
	"github.com/sells-group/case-reconcile/internal/resilience"
	"github.com/sells-group/case-reconcile/internal/resolver"
)

// ReasonExhaustedRetries is the failure reason once every attempt hit a
// transient fault.
const ReasonExhaustedRetries = "exhausted retries"

var errAbandoned = eris.New("reconcile: cancelled before attempt")

// Worker resolves one task with bounded retries. Every attempt runs on its
// own resolver session.
type Worker struct {
	Resolver    resolver.Resolver
	MaxAttempts int
	Backoff     time.Duration
	// AttemptTimeout bounds one attempt's resolver I/O. Zero means no bound.
	AttemptTimeout time.Duration
	// Sleep replaces the backoff wait; nil waits on a timer.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *zap.Logger
}

// Attempt resolves task. Cancellation is checked before every attempt; an
// attempt already running is allowed to finish.
func (w *Worker) Attempt(ctx context.Context, task model.Task) model.LookupResult {
	log := w.logger().With(zap.String("case_id", task.CaseID))
	res := model.LookupResult{Task: task}

	cfg := resilience.FixedRetryConfig(w.MaxAttempts, w.Backoff)
	cfg.Sleep = w.Sleep
	cfg.ShouldRetry = func(err error) bool {
		return !eris.Is(err, resolver.ErrNotFound) && resilience.IsTransient(err)
	}
	cfg.OnRetry = resilience.RetryLogger(log, "lookup",
		zap.String("name", fullName(task)))

	fields, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (model.Fields, error) {
		if ctx.Err() != nil {
			return nil, errAbandoned
		}
		res.Attempts++
		return w.once(ctx, task)
	})

	switch {
	case err == nil:
		res.Outcome = model.OutcomeFound
		res.Fields = fields
	case eris.Is(err, errAbandoned):
		res.Outcome = model.OutcomeAbandoned
		res.Reason = "cancelled"
	case eris.Is(err, resolver.ErrNotFound):
		res.Outcome = model.OutcomeNotFound
		res.Reason = err.Error()
	case resilience.IsTransient(err) && ctx.Err() != nil && res.Attempts < cfg.MaxAttempts:
		// Cancelled during backoff: the next attempt would have been skipped.
		res.Outcome = model.OutcomeAbandoned
		res.Reason = "cancelled"
	case resilience.IsTransient(err):
		res.Outcome = model.OutcomeFailed
		res.Reason = ReasonExhaustedRetries
		log.Warn("lookup failed after retries",
			zap.Int("attempts", res.Attempts), zap.Error(err))
	default:
		res.Outcome = model.OutcomeFailed
		res.Reason = err.Error()
		log.Warn("lookup failed", zap.Int("attempts", res.Attempts), zap.Error(err))
	}
	return res
}

// once runs a single attempt: open a session, look up, close. The resolver
// sees a context detached from cancellation and bounded by AttemptTimeout.
func (w *Worker) once(ctx context.Context, task model.Task) (fields model.Fields, err error) {
	actx := context.WithoutCancel(ctx)
	if w.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(actx, w.AttemptTimeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			fields = nil
			err = resilience.NewTransientError(eris.Errorf("reconcile: resolver panic: %v", p), 0)
		}
	}()

	sess, err := w.Resolver.Open(actx)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: open session")
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			w.logger().Debug("close session", zap.String("case_id", task.CaseID), zap.Error(cerr))
		}
	}()

	return sess.Lookup(actx, resolver.Query{
		CaseID:    task.CaseID,
		FirstName: task.FirstName,
		LastName:  task.LastName,
	})
}

func (w *Worker) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.L()
	}
	return w.Logger
}

func fullName(t model.Task) string {
	return model.Record{FirstName: t.FirstName, LastName: t.LastName}.FullName()
}
