// Package resolver defines the boundary to the remote record lookup service
// and its implementations.
package resolver

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/case-reconcile/internal/model"
)

// ErrNotFound reports a confirmed absence: the session worked but the record
// could not be located. It is never retried.
var ErrNotFound = eris.New("record not found")

// Query identifies the record to look up.
type Query struct {
	CaseID    string
	FirstName string
	LastName  string
}

// Resolver opens lookup sessions. Each retry attempt opens its own session.
type Resolver interface {
	Open(ctx context.Context) (Session, error)
}

// Session performs lookups. Lookup returns ErrNotFound for a logical absence
// and a *resilience.TransientError for infrastructure faults. Close must be
// safe to call after any Lookup outcome.
type Session interface {
	Lookup(ctx context.Context, q Query) (model.Fields, error)
	Close() error
}

// ResolverFunc adapts a plain function into a Resolver whose sessions need
// no setup or teardown.
type ResolverFunc func(ctx context.Context, q Query) (model.Fields, error)

// Open implements Resolver.
func (f ResolverFunc) Open(context.Context) (Session, error) {
	return funcSession(f), nil
}

type funcSession ResolverFunc

func (s funcSession) Lookup(ctx context.Context, q Query) (model.Fields, error) {
	return s(ctx, q)
}

func (funcSession) Close() error { return nil }
