package resolver

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/case-reconcile/internal/model"
	"github.com/sells-group/case-reconcile/internal/normalize"
)

// StubResolver answers lookups from an in-memory fixture set. Unknown ids
// are not found. It backs offline runs.
type StubResolver struct {
	Records map[string]model.Fields
}

// LoadStubRecords reads fixtures from a JSON object keyed by case id:
//
//	{"12345": {"location": "SRCI", "status": "Inmate", "release date": "01/02/2030"}}
//
// Keys are canonicalized the same way input identifiers are.
func LoadStubRecords(path string) (*StubResolver, error) {
	s := &StubResolver{Records: map[string]model.Fields{}}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "resolver: read fixtures %s", path)
	}
	var raw map[string]model.Fields
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "resolver: parse fixtures")
	}
	for id, fields := range raw {
		key := normalize.CanonicalCaseID(id)
		if key == model.MissingCaseID {
			return nil, eris.Errorf("resolver: fixture id %q is not numeric", id)
		}
		s.Records[key] = fields
	}
	return s, nil
}

// Open implements Resolver.
func (s *StubResolver) Open(context.Context) (Session, error) {
	return stubSession{s}, nil
}

type stubSession struct{ s *StubResolver }

func (ss stubSession) Lookup(_ context.Context, q Query) (model.Fields, error) {
	fields, ok := ss.s.Records[q.CaseID]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "stub: case %s", q.CaseID)
	}
	out := make(model.Fields, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out, nil
}

func (stubSession) Close() error { return nil }
