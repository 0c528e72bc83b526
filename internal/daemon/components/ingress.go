package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/heike/internal/clock"
	"github.com/harunnryd/heike/internal/config"
	"github.com/harunnryd/heike/internal/daemon"
	"github.com/harunnryd/heike/internal/ingress"
	"github.com/harunnryd/heike/internal/ratelimit"
)

// IngressComponent owns the interactive/background queue pair that
// feeds WorkersComponent. Queue sizing reuses config.WebhookConfig's
// InteractiveQueueSize/BackgroundQueueSize fields since webhook
// delivery is this runtime's only inbound submission surface. It also
// builds the Rate Limiter (C4) and hands it to ingress.NewIngress so
// every submitted event is admitted through the adaptive windows
// before it reaches a queue.
type IngressComponent struct {
	ingress         *ingress.Ingress
	limiter         *ratelimit.Limiter
	storeWorkerComp *StoreWorkerComponent
	cfg             *config.WebhookConfig
	rateLimitCfg    *config.RateLimitConfig
	initialized     bool
	started         bool
	mu              sync.RWMutex
	startTime       time.Time
}

func NewIngressComponent(storeComp *StoreWorkerComponent, cfg *config.WebhookConfig, rateLimitCfg *config.RateLimitConfig) *IngressComponent {
	return &IngressComponent{
		storeWorkerComp: storeComp,
		cfg:             cfg,
		rateLimitCfg:    rateLimitCfg,
		initialized:     false,
		started:         false,
	}
}

func (i *IngressComponent) Name() string {
	return "Ingress"
}

func (i *IngressComponent) Dependencies() []string {
	return []string{"StoreWorker"}
}

func (i *IngressComponent) Init(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.storeWorkerComp == nil {
		return fmt.Errorf("storeWorkerComp not provided")
	}

	storeWorker := i.storeWorkerComp.GetWorker()
	if storeWorker == nil {
		return fmt.Errorf("storeWorker not initialized")
	}

	interactiveQueueSize := config.DefaultIngressInteractiveQueue
	backgroundQueueSize := config.DefaultIngressBackgroundQueue
	if i.cfg != nil {
		if i.cfg.InteractiveQueueSize > 0 {
			interactiveQueueSize = i.cfg.InteractiveQueueSize
		}
		if i.cfg.BackgroundQueueSize > 0 {
			backgroundQueueSize = i.cfg.BackgroundQueueSize
		}
	}

	interactiveSubmitTimeout, err := config.DurationOrDefault("", config.DefaultIngressInteractiveSubmitTimeout)
	if err != nil {
		return fmt.Errorf("parse ingress interactive submit timeout: %w", err)
	}
	drainTimeout, err := config.DurationOrDefault("", config.DefaultIngressDrainTimeout)
	if err != nil {
		return fmt.Errorf("parse ingress drain timeout: %w", err)
	}
	drainPollInterval, err := config.DurationOrDefault("", config.DefaultIngressDrainPollInterval)
	if err != nil {
		return fmt.Errorf("parse ingress drain poll interval: %w", err)
	}
	idempotencyTTL, err := config.DurationOrDefault("", config.DefaultGovernanceIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("parse governance idempotency ttl: %w", err)
	}

	rlCfg := config.RateLimitConfig{}
	if i.rateLimitCfg != nil {
		rlCfg = *i.rateLimitCfg
	}
	burstWindow, err := config.DurationOrDefault(rlCfg.BurstWindow, config.DefaultRateLimitBurstWindow)
	if err != nil {
		return fmt.Errorf("parse rate limit burst window: %w", err)
	}
	decayAfter, err := config.DurationOrDefault(rlCfg.DecayAfter, config.DefaultRateLimitDecayAfter)
	if err != nil {
		return fmt.Errorf("parse rate limit decay after: %w", err)
	}
	quotaGrace, err := config.DurationOrDefault(rlCfg.QuotaGrace, config.DefaultRateLimitQuotaGrace)
	if err != nil {
		return fmt.Errorf("parse rate limit quota grace: %w", err)
	}
	i.limiter = ratelimit.New(clock.New(), rlCfg, burstWindow, decayAfter, quotaGrace)

	i.ingress = ingress.NewIngress(
		interactiveQueueSize,
		backgroundQueueSize,
		ingress.RuntimeConfig{
			InteractiveSubmitTimeout: interactiveSubmitTimeout,
			DrainTimeout:             drainTimeout,
			DrainPollInterval:        drainPollInterval,
			IdempotencyTTL:           idempotencyTTL,
		},
		storeWorker,
		i.limiter,
	)
	i.initialized = true
	slog.Info("Ingress initialized", "component", i.Name())
	return nil
}

// GetLimiter returns the Rate Limiter (C4) instance so other admission
// points (the webhook router, the Cognitive Loop) can share the same
// windows rather than gating independently.
func (i *IngressComponent) GetLimiter() *ratelimit.Limiter {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.limiter
}

func (i *IngressComponent) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.initialized {
		return fmt.Errorf("Ingress not initialized")
	}

	i.started = true
	i.startTime = time.Now()
	slog.Info("Ingress started", "component", i.Name())
	return nil
}

func (i *IngressComponent) Stop(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.started {
		slog.Info("Ingress not started, skipping stop", "component", i.Name())
		return nil
	}

	slog.Info("Stopping Ingress...", "component", i.Name())
	if i.ingress != nil {
		i.ingress.Close()
	}
	i.started = false
	slog.Info("Ingress stopped", "component", i.Name())
	return nil
}

func (i *IngressComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if !i.started {
		return &daemon.ComponentHealth{
			Name:    i.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not started"),
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    i.Name(),
		Healthy: true,
		Error:   nil,
	}, nil
}

func (i *IngressComponent) GetIngress() *ingress.Ingress {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.ingress
}
