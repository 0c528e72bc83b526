package breaker

import (
	"context"

	heikeErrors "github.com/harunnryd/heike/internal/errors"
	"github.com/harunnryd/heike/internal/trace"
)

// GuardedTraceStore wraps a trace.Store with the Infra Circuit Breaker
// (C5b), tripping on the dependency name "trace_store" after repeated
// I/O failures and failing fast with ErrCircuitOpen while it is open,
// per SPEC_FULL's extension of spec.md §4.3 to cover the Trace/Frame
// store tier alongside the LLM cloud tier.
type GuardedTraceStore struct {
	inner trace.Store
	infra *Infra
	name  string
}

// NewGuardedTraceStore wraps inner behind infra, keyed by name (e.g.
// "trace_store" or "frame_store").
func NewGuardedTraceStore(inner trace.Store, infra *Infra, name string) *GuardedTraceStore {
	return &GuardedTraceStore{inner: inner, infra: infra, name: name}
}

func (g *GuardedTraceStore) Append(ctx context.Context, rec trace.Record) error {
	decision, token := g.infra.Check(ctx, g.name)
	if !decision.Allowed {
		return heikeErrors.CircuitOpen(g.name + " unavailable")
	}
	err := g.inner.Append(ctx, rec)
	token.Record(err == nil)
	return err
}

func (g *GuardedTraceStore) Recent(ctx context.Context, userID string, limit int) ([]trace.Record, error) {
	decision, token := g.infra.Check(ctx, g.name)
	if !decision.Allowed {
		return nil, heikeErrors.CircuitOpen(g.name + " unavailable")
	}
	recs, err := g.inner.Recent(ctx, userID, limit)
	token.Record(err == nil)
	return recs, err
}

func (g *GuardedTraceStore) Get(ctx context.Context, id string) (*trace.Record, error) {
	decision, token := g.infra.Check(ctx, g.name)
	if !decision.Allowed {
		return nil, heikeErrors.CircuitOpen(g.name + " unavailable")
	}
	rec, err := g.inner.Get(ctx, id)
	token.Record(err == nil)
	return rec, err
}

var _ trace.Store = (*GuardedTraceStore)(nil)
