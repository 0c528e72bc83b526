package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/heike/internal/adapter"
	"github.com/harunnryd/heike/internal/breaker"
	"github.com/harunnryd/heike/internal/clock"
	"github.com/harunnryd/heike/internal/cogloop"
	"github.com/harunnryd/heike/internal/config"
	"github.com/harunnryd/heike/internal/daemon"
	"github.com/harunnryd/heike/internal/frame"
	"github.com/harunnryd/heike/internal/framecache"
	"github.com/harunnryd/heike/internal/llmrouter"
	"github.com/harunnryd/heike/internal/model"
	"github.com/harunnryd/heike/internal/safety"
	"github.com/harunnryd/heike/internal/trace"
	"github.com/harunnryd/heike/internal/worker"
)

// CogLoopComponent wires the Frame Builder, Safety Monitor, LLM Router,
// psychological + infra breakers and Trace Store into one Cognitive
// Loop (C9), and exposes it to WorkersComponent as a worker.Runner.
type CogLoopComponent struct {
	cfg           *config.Config
	traces        trace.Store
	telemetryComp *TelemetryComponent
	ingressComp   *IngressComponent
	notifier      cogloop.Notifier

	mu          sync.RWMutex
	loop        *cogloop.Loop
	runner      *adapter.CogLoopRunner
	infra       *breaker.Infra
	initialized bool
	started     bool
}

// NewCogLoopComponent wires telemetryComp (may be nil, disabling C12
// emission), ingressComp (may be nil, disabling C4 admission control;
// the same Rate Limiter instance ingress already constructed is reused
// rather than building a second one) and notifier (may be nil,
// disabling proactive-nudge outbound delivery; egress.New is the
// production implementation) into the Cognitive Loop.
func NewCogLoopComponent(cfg *config.Config, traces trace.Store, telemetryComp *TelemetryComponent, notifier cogloop.Notifier, ingressComp *IngressComponent) *CogLoopComponent {
	return &CogLoopComponent{cfg: cfg, traces: traces, telemetryComp: telemetryComp, notifier: notifier, ingressComp: ingressComp}
}

func (c *CogLoopComponent) Name() string {
	return "CogLoop"
}

func (c *CogLoopComponent) Dependencies() []string {
	var deps []string
	if c.telemetryComp != nil {
		deps = append(deps, "Telemetry")
	}
	if c.ingressComp != nil {
		deps = append(deps, "Ingress")
	}
	return deps
}

func (c *CogLoopComponent) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg == nil {
		return fmt.Errorf("config not provided")
	}
	if c.traces == nil {
		return fmt.Errorf("trace store not provided")
	}

	clk := clock.New()

	cooldown, err := config.DurationOrDefault(c.cfg.Breaker.Psych.CooldownPeriod, config.DefaultBreakerPsychCooldownPeriod)
	if err != nil {
		return fmt.Errorf("parse psych breaker cooldown: %w", err)
	}
	psych := breaker.NewPsych(c.cfg.Breaker.Psych, cooldown, slog.Default())

	infraInterval, err := config.DurationOrDefault(c.cfg.Breaker.Infra.Interval, config.DefaultBreakerInfraInterval)
	if err != nil {
		return fmt.Errorf("parse infra breaker interval: %w", err)
	}
	infraTimeout, err := config.DurationOrDefault(c.cfg.Breaker.Infra.Timeout, config.DefaultBreakerInfraTimeout)
	if err != nil {
		return fmt.Errorf("parse infra breaker timeout: %w", err)
	}
	c.infra = breaker.NewInfra(c.cfg.Breaker.Infra, infraInterval, infraTimeout, slog.Default())

	guardedTraces := breaker.NewGuardedTraceStore(c.traces, c.infra, "trace_store")

	frameTraceTTL, err := config.DurationOrDefault(c.cfg.Frame.TraceTTL, config.DefaultFrameTraceTTL)
	if err != nil {
		return fmt.Errorf("parse frame trace ttl: %w", err)
	}
	guardedFrameTraces := breaker.NewGuardedTraceStore(c.traces, c.infra, "frame_store")
	builder := frame.New(guardedFrameTraces, framecache.New(), c.cfg.Frame, frameTraceTTL)

	safetyMonitor := safety.New(c.cfg.Safety, clk)

	modelRouter, err := model.NewModelRouter(c.cfg.Models)
	if err != nil {
		return fmt.Errorf("build model router: %w", err)
	}

	var patterns []llmrouter.PatternRule
	callTimeout, err := config.DurationOrDefault(c.cfg.CogLoop.ProcessingTimeout, config.DefaultCogLoopProcessingTimeout)
	if err != nil {
		return fmt.Errorf("parse cogloop processing timeout: %w", err)
	}
	var maxTokens int
	for _, entry := range c.cfg.Models.Registry {
		if entry.Name == c.cfg.Models.Default {
			maxTokens = entry.MaxTokens
			break
		}
	}
	router := llmrouter.New(safetyMonitor, modelRouter, c.cfg.Models.Default, maxTokens, callTimeout, frameTraceTTL, patterns)
	router.SetInfraBreaker(c.infra)

	fanOutTimeout, err := config.DurationOrDefault(c.cfg.CogLoop.FanOutTimeout, config.DefaultCogLoopFanOutTimeout)
	if err != nil {
		return fmt.Errorf("parse cogloop fan-out timeout: %w", err)
	}

	c.loop = cogloop.New(psych, builder, router, guardedTraces, c.notifier, fanOutTimeout)
	if c.telemetryComp != nil {
		c.loop.SetTelemetry(c.telemetryComp.GetMetrics(), c.telemetryComp.GetAudit())
	}
	if c.ingressComp != nil {
		c.loop.SetRateLimiter(c.ingressComp.GetLimiter())
	}
	c.runner = adapter.NewCogLoopRunner(c.loop)
	c.initialized = true
	slog.Info("CogLoop initialized", "component", c.Name())
	return nil
}

func (c *CogLoopComponent) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return fmt.Errorf("CogLoop not initialized")
	}
	c.started = true
	slog.Info("CogLoop started", "component", c.Name())
	return nil
}

func (c *CogLoopComponent) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	return nil
}

func (c *CogLoopComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.initialized {
		return &daemon.ComponentHealth{Name: c.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if !c.started {
		return &daemon.ComponentHealth{Name: c.Name(), Healthy: false, Error: fmt.Errorf("not started")}, nil
	}
	return &daemon.ComponentHealth{Name: c.Name(), Healthy: true}, nil
}

// GetRunner returns the worker.Runner backed by the Cognitive Loop.
func (c *CogLoopComponent) GetRunner() worker.Runner {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runner
}

// GetLoop returns the underlying Cognitive Loop, used by NudgeComponent
// to build its Proactor.
func (c *CogLoopComponent) GetLoop() *cogloop.Loop {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loop
}
