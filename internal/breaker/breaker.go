// Package breaker implements the shared circuit-breaker primitive (C5)
// behind two instantiations: a per-user "psychological" breaker that
// protects a person from runaway automated engagement, and a
// per-dependency infrastructure breaker that protects the system from a
// failing upstream. Both share one Check/Record shape and are built on
// github.com/sony/gobreaker's TwoStepCircuitBreaker, grounded in
// _examples/iruldev-golang-api-hexagonal/internal/infra/resilience's
// gobreaker wrapper.
package breaker

import (
	"context"
	"time"
)

// Decision is the outcome of a Check call.
type Decision struct {
	Allowed    bool
	State      string
	RetryAfter time.Duration
}

// Token is returned alongside an allowed Decision and must be completed
// exactly once with the outcome of the guarded operation. Discarding an
// allowed token without calling Record leaves gobreaker's internal
// half-open request slot consumed until Interval rolls it off.
type Token interface {
	Record(success bool)
}

// Breaker is the shared interface both the psychological (per-user) and
// infrastructure (per-dependency) breakers satisfy.
type Breaker interface {
	// Check reports whether a request for key may proceed. A Deny
	// decision carries no Token; RetryAfter estimates when Check might
	// next allow the same key.
	Check(ctx context.Context, key string) (Decision, Token)
}

type noopToken struct{}

func (noopToken) Record(bool) {}

var disallowedToken Token = noopToken{}

const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)
