package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/harunnryd/heike/internal/config"
)

// Infra is the per-dependency infrastructure circuit breaker: one
// gobreaker.TwoStepCircuitBreaker per external dependency name (e.g. an
// LLM provider or an adapter's outbound API), tripping on consecutive
// failures and recovering through gobreaker's own half-open trial
// counting (MaxRequests/Interval), matching
// _examples/iruldev-golang-api-hexagonal's resilience.CircuitBreaker.
type Infra struct {
	cfg      config.InfraBreakerConfig
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.TwoStepCircuitBreaker
}

// NewInfra builds the infrastructure breaker from configuration, with
// interval/timeout already parsed to time.Duration by config.Load.
func NewInfra(cfg config.InfraBreakerConfig, interval, timeout time.Duration, logger *slog.Logger) *Infra {
	if logger == nil {
		logger = slog.Default()
	}
	return &Infra{
		cfg:      cfg,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		breakers: make(map[string]*gobreaker.TwoStepCircuitBreaker),
	}
}

func (in *Infra) forDependency(name string) *gobreaker.TwoStepCircuitBreaker {
	in.mu.Lock()
	defer in.mu.Unlock()

	if cb, ok := in.breakers[name]; ok {
		return cb
	}

	threshold := in.cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	maxRequests := in.cfg.MaxRequests
	if maxRequests == 0 {
		maxRequests = 1
	}

	cb := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        "infra:" + name,
		MaxRequests: maxRequests,
		Interval:    in.interval,
		Timeout:     in.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(n string, from, to gobreaker.State) {
			in.logger.Info("infrastructure breaker state change",
				"name", n, "from", from.String(), "to", to.String())
		},
	})
	in.breakers[name] = cb
	return cb
}

// Check reports whether a call to dependency name is currently allowed.
func (in *Infra) Check(ctx context.Context, name string) (Decision, Token) {
	select {
	case <-ctx.Done():
		return Decision{Allowed: false, State: StateOpen}, disallowedToken
	default:
	}

	cb := in.forDependency(name)
	done, err := cb.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Decision{Allowed: false, State: StateOpen, RetryAfter: in.timeout}, disallowedToken
		}
		return Decision{Allowed: false, State: StateOpen}, disallowedToken
	}
	return Decision{Allowed: true, State: goState(cb.State())}, infraToken{done: done}
}

// State reports name's current breaker state without consuming a slot.
func (in *Infra) State(name string) string {
	in.mu.Lock()
	cb, ok := in.breakers[name]
	in.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return goState(cb.State())
}

type infraToken struct {
	done func(bool)
}

func (t infraToken) Record(success bool) { t.done(success) }

var (
	_ Breaker = (*Psych)(nil)
	_ Breaker = (*Infra)(nil)
)
