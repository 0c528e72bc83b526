package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/harunnryd/heike/internal/concurrency"
	"github.com/harunnryd/heike/internal/config"
)

// Psych is the per-user "psychological" circuit breaker: it trips after
// FailureThreshold consecutive disengagements/overrides for a single
// user and stays open for CooldownPeriod before allowing one half-open
// trial. Access per user is serialized through
// concurrency.SimpleSessionLockManager so a burst of concurrent events
// for the same user can't race the lazy breaker-creation step.
type Psych struct {
	cfg      config.PsychBreakerConfig
	cooldown time.Duration
	locks    *concurrency.SimpleSessionLockManager
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.TwoStepCircuitBreaker
}

// NewPsych builds the psychological breaker from configuration.
func NewPsych(cfg config.PsychBreakerConfig, cooldown time.Duration, logger *slog.Logger) *Psych {
	if logger == nil {
		logger = slog.Default()
	}
	return &Psych{
		cfg:      cfg,
		locks:    concurrency.NewSimpleSessionLockManager(),
		logger:   logger,
		breakers: make(map[string]*gobreaker.TwoStepCircuitBreaker),
		cooldown: cooldown,
	}
}

func (p *Psych) forUser(userID string) *gobreaker.TwoStepCircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cb, ok := p.breakers[userID]; ok {
		return cb
	}

	threshold := uint32(p.cfg.FailureThreshold)
	if threshold == 0 {
		threshold = 3
	}

	cb := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:    "psych:" + userID,
		Timeout: p.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Info("psychological breaker state change",
				"name", name, "from", from.String(), "to", to.String())
		},
	})
	p.breakers[userID] = cb
	return cb
}

// Check reports whether userID's next interaction is currently allowed.
func (p *Psych) Check(ctx context.Context, userID string) (Decision, Token) {
	p.locks.Lock(userID)
	defer p.locks.Unlock(userID)

	select {
	case <-ctx.Done():
		return Decision{Allowed: false, State: StateOpen}, disallowedToken
	default:
	}

	cb := p.forUser(userID)
	done, err := cb.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Decision{
				Allowed:    false,
				State:      StateOpen,
				RetryAfter: p.cooldown,
			}, disallowedToken
		}
		return Decision{Allowed: false, State: StateOpen}, disallowedToken
	}

	return Decision{Allowed: true, State: goState(cb.State())}, psychToken{done: done}
}

// State reports userID's current breaker state without consuming a slot.
func (p *Psych) State(userID string) string {
	p.mu.Lock()
	cb, ok := p.breakers[userID]
	p.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return goState(cb.State())
}

type psychToken struct {
	done func(bool)
}

func (t psychToken) Record(success bool) { t.done(success) }

func goState(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
