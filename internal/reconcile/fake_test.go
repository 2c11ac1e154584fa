package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sells-group/case-reconcile/internal/model"
	"github.com/sells-group/case-reconcile/internal/resolver"
)

// fakeResolver counts sessions and lookups and delegates each lookup to fn,
// which receives the 1-based call number for that case id.
type fakeResolver struct {
	fn func(ctx context.Context, q resolver.Query, call int) (model.Fields, error)

	opens    atomic.Int32
	closes   atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32

	mu    sync.Mutex
	calls map[string]int
}

func newFakeResolver(fn func(ctx context.Context, q resolver.Query, call int) (model.Fields, error)) *fakeResolver {
	return &fakeResolver{fn: fn, calls: map[string]int{}}
}

func (f *fakeResolver) Open(context.Context) (resolver.Session, error) {
	f.opens.Add(1)
	return &fakeSession{f: f}, nil
}

func (f *fakeResolver) Calls(caseID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[caseID]
}

func (f *fakeResolver) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type fakeSession struct {
	f      *fakeResolver
	closed bool
}

func (s *fakeSession) Lookup(ctx context.Context, q resolver.Query) (model.Fields, error) {
	n := s.f.inFlight.Add(1)
	defer s.f.inFlight.Add(-1)
	for {
		m := s.f.maxSeen.Load()
		if n <= m || s.f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	s.f.mu.Lock()
	s.f.calls[q.CaseID]++
	call := s.f.calls[q.CaseID]
	s.f.mu.Unlock()

	return s.f.fn(ctx, q, call)
}

func (s *fakeSession) Close() error {
	if !s.closed {
		s.closed = true
		s.f.closes.Add(1)
	}
	return nil
}

// recordingSleep captures backoff waits without sleeping.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) Sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func (r *recordingSleep) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

// foundFields returns deterministic enrichment for a case id.
func foundFields(caseID string) model.Fields {
	return model.Fields{
		model.KeyLocation:    "LOC-" + caseID,
		model.KeyStatus:      "Inmate",
		model.KeyReleaseDate: "01/01/2030",
	}
}

// testDataset builds a normalized-looking dataset with columns
// caseId, firstName, lastName, notes and the four enrichment columns.
func testDataset(ids ...string) *model.Dataset {
	ds := &model.Dataset{Columns: []model.Column{
		{Name: "DOC Number", Key: model.KeyCaseID},
		{Name: "First Name", Key: model.KeyFirstName},
		{Name: "Last Name", Key: model.KeyLastName},
		{Name: "Notes", Key: "notes"},
		{Name: model.KeyLocation, Key: model.KeyLocation},
		{Name: model.KeyStatus, Key: model.KeyStatus},
		{Name: model.KeyReleaseDate, Key: model.KeyReleaseDate},
		{Name: model.KeyDateOfSearch, Key: model.KeyDateOfSearch},
	}}
	for i, id := range ids {
		first := "First" + string(rune('A'+i))
		ds.Records = append(ds.Records, model.Record{
			RowIndex:  i,
			CaseID:    id,
			FirstName: first,
			LastName:  "Last",
			Values:    []string{id, first, "Last", "note", "N/A", "N/A", "N/A", "N/A"},
		})
	}
	return ds
}
