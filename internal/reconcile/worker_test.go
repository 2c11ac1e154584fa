package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/case-reconcile/internal/model"
	"github.com/sells-group/case-reconcile/internal/resilience"
	"github.com/sells-group/case-reconcile/internal/resolver"
)

var testTask = model.Task{RowIndex: 0, CaseID: "00012345", FirstName: "Ann", LastName: "Lee"}

func transientFault() error {
	return resilience.NewTransientError(eris.New("session dropped"), 0)
}

func newTestWorker(r resolver.Resolver, sleep *recordingSleep) *Worker {
	return &Worker{
		Resolver:    r,
		MaxAttempts: 3,
		Backoff:     time.Second,
		Sleep:       sleep.Sleep,
		Logger:      zap.NewNop(),
	}
}

func TestWorker_TwoTransientFaultsThenFound(t *testing.T) {
	fr := newFakeResolver(func(_ context.Context, q resolver.Query, call int) (model.Fields, error) {
		if call < 3 {
			return nil, transientFault()
		}
		return foundFields(q.CaseID), nil
	})
	sleep := &recordingSleep{}

	res := newTestWorker(fr, sleep).Attempt(context.Background(), testTask)

	assert.Equal(t, model.OutcomeFound, res.Outcome)
	assert.Equal(t, foundFields(testTask.CaseID), res.Fields)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, fr.Calls(testTask.CaseID))
	assert.Equal(t, []time.Duration{time.Second, time.Second}, sleep.Delays())
	// One fresh session per attempt, each released.
	assert.Equal(t, int32(3), fr.opens.Load())
	assert.Equal(t, int32(3), fr.closes.Load())
}

func TestWorker_NotFoundIsNotRetried(t *testing.T) {
	fr := newFakeResolver(func(_ context.Context, q resolver.Query, _ int) (model.Fields, error) {
		return nil, eris.Wrapf(resolver.ErrNotFound, "case %s", q.CaseID)
	})
	sleep := &recordingSleep{}

	res := newTestWorker(fr, sleep).Attempt(context.Background(), testTask)

	assert.Equal(t, model.OutcomeNotFound, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, fr.Calls(testTask.CaseID))
	assert.Empty(t, sleep.Delays())
	assert.Equal(t, int32(1), fr.closes.Load())
}

func TestWorker_ExhaustedRetries(t *testing.T) {
	fr := newFakeResolver(func(context.Context, resolver.Query, int) (model.Fields, error) {
		return nil, transientFault()
	})
	sleep := &recordingSleep{}

	res := newTestWorker(fr, sleep).Attempt(context.Background(), testTask)

	assert.Equal(t, model.OutcomeFailed, res.Outcome)
	assert.Equal(t, ReasonExhaustedRetries, res.Reason)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, fr.Calls(testTask.CaseID))
	assert.Len(t, sleep.Delays(), 2)
}

func TestWorker_PermanentErrorIsNotRetried(t *testing.T) {
	fr := newFakeResolver(func(context.Context, resolver.Query, int) (model.Fields, error) {
		return nil, eris.New("malformed request")
	})
	sleep := &recordingSleep{}

	res := newTestWorker(fr, sleep).Attempt(context.Background(), testTask)

	assert.Equal(t, model.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Reason, "malformed request")
	assert.Equal(t, 1, fr.Calls(testTask.CaseID))
	assert.Empty(t, sleep.Delays())
}

func TestWorker_CancelledBeforeFirstAttempt(t *testing.T) {
	fr := newFakeResolver(func(_ context.Context, q resolver.Query, _ int) (model.Fields, error) {
		return foundFields(q.CaseID), nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestWorker(fr, &recordingSleep{}).Attempt(ctx, testTask)

	assert.Equal(t, model.OutcomeAbandoned, res.Outcome)
	assert.False(t, res.Merged())
	assert.Equal(t, 0, res.Attempts)
	assert.Equal(t, int32(0), fr.opens.Load())
}

func TestWorker_CancelledDuringBackoff(t *testing.T) {
	fr := newFakeResolver(func(context.Context, resolver.Query, int) (model.Fields, error) {
		return nil, transientFault()
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := newTestWorker(fr, &recordingSleep{})
	w.Sleep = func(context.Context, time.Duration) error {
		cancel()
		return nil
	}

	res := w.Attempt(ctx, testTask)

	assert.Equal(t, model.OutcomeAbandoned, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, fr.Calls(testTask.CaseID))
}

func TestWorker_InFlightAttemptIsNotInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fr := newFakeResolver(func(actx context.Context, q resolver.Query, _ int) (model.Fields, error) {
		cancel()
		if actx.Err() != nil {
			return nil, actx.Err()
		}
		return foundFields(q.CaseID), nil
	})

	res := newTestWorker(fr, &recordingSleep{}).Attempt(ctx, testTask)

	assert.Equal(t, model.OutcomeFound, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
}

func TestWorker_AttemptTimeoutBoundsLookup(t *testing.T) {
	fr := newFakeResolver(func(actx context.Context, q resolver.Query, call int) (model.Fields, error) {
		if call == 1 {
			<-actx.Done()
			return nil, actx.Err()
		}
		return foundFields(q.CaseID), nil
	})
	sleep := &recordingSleep{}
	w := newTestWorker(fr, sleep)
	w.AttemptTimeout = 20 * time.Millisecond

	res := w.Attempt(context.Background(), testTask)

	assert.Equal(t, model.OutcomeFound, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
	assert.Len(t, sleep.Delays(), 1)
}

func TestWorker_PanicReleasesSessionAndRetries(t *testing.T) {
	fr := newFakeResolver(func(_ context.Context, q resolver.Query, call int) (model.Fields, error) {
		if call == 1 {
			panic("driver crashed")
		}
		return foundFields(q.CaseID), nil
	})

	res := newTestWorker(fr, &recordingSleep{}).Attempt(context.Background(), testTask)

	assert.Equal(t, model.OutcomeFound, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, int32(2), fr.opens.Load())
	assert.Equal(t, int32(2), fr.closes.Load())
}

type failingOpen struct {
	fails int
	opens int
	inner resolver.Resolver
}

func (f *failingOpen) Open(ctx context.Context) (resolver.Session, error) {
	f.opens++
	if f.opens <= f.fails {
		return nil, transientFault()
	}
	return f.inner.Open(ctx)
}

func TestWorker_OpenFailureIsRetried(t *testing.T) {
	fr := newFakeResolver(func(_ context.Context, q resolver.Query, _ int) (model.Fields, error) {
		return foundFields(q.CaseID), nil
	})
	fo := &failingOpen{fails: 1, inner: fr}
	sleep := &recordingSleep{}

	res := newTestWorker(fo, sleep).Attempt(context.Background(), testTask)

	require.Equal(t, model.OutcomeFound, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 2, fo.opens)
	assert.Len(t, sleep.Delays(), 1)
}
