package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/heike/internal/clock"
	"github.com/harunnryd/heike/internal/config"
	"github.com/harunnryd/heike/internal/daemon"
	"github.com/harunnryd/heike/internal/nudge"
)

// NudgeComponent wraps the Nudge Scheduler (C11). It re-enters the
// Cognitive Loop directly rather than going through Ingress, since a
// proactive nudge is not an externally-submitted event.
type NudgeComponent struct {
	sched         *nudge.Scheduler
	cfg           *config.Config
	cogLoopComp   *CogLoopComponent
	telemetryComp *TelemetryComponent
	started       bool
}

func NewNudgeComponent(cfg *config.Config, cogLoopComp *CogLoopComponent, telemetryComp *TelemetryComponent) *NudgeComponent {
	return &NudgeComponent{
		cfg:           cfg,
		cogLoopComp:   cogLoopComp,
		telemetryComp: telemetryComp,
	}
}

func (n *NudgeComponent) Name() string {
	return "Nudge"
}

func (n *NudgeComponent) Dependencies() []string {
	deps := []string{"CogLoop"}
	if n.telemetryComp != nil {
		deps = append(deps, "Telemetry")
	}
	return deps
}

func (n *NudgeComponent) Init(ctx context.Context) error {
	if n.cogLoopComp == nil {
		return fmt.Errorf("cogLoopComp not provided")
	}
	if n.cfg == nil {
		return fmt.Errorf("config not provided")
	}

	loop := n.cogLoopComp.GetLoop()
	if loop == nil {
		return fmt.Errorf("cognitive loop not initialized")
	}

	tickInterval, err := config.DurationOrDefault(n.cfg.Nudge.TickInterval, config.DefaultNudgeTickInterval)
	if err != nil {
		return fmt.Errorf("parse nudge tick interval: %w", err)
	}

	n.sched = nudge.New(loop, clock.New(), tickInterval, 0, slog.Default())
	if n.telemetryComp != nil {
		n.sched.SetMetrics(n.telemetryComp.GetMetrics())
	}

	slog.Info("Nudge initialized", "component", n.Name())
	return nil
}

func (n *NudgeComponent) Start(ctx context.Context) error {
	if n.sched == nil {
		return fmt.Errorf("nudge scheduler not initialized")
	}

	n.sched.Start(ctx)
	n.started = true

	slog.Info("Nudge started", "component", n.Name())
	return nil
}

func (n *NudgeComponent) Stop(ctx context.Context) error {
	if n.sched == nil {
		slog.Info("Nudge not initialized, skipping stop", "component", n.Name())
		return nil
	}

	if err := n.sched.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop nudge scheduler: %w", err)
	}

	n.started = false
	slog.Info("Nudge stopped", "component", n.Name())
	return nil
}

func (n *NudgeComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	if n.sched == nil {
		return &daemon.ComponentHealth{
			Name:    n.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}
	if !n.started {
		return &daemon.ComponentHealth{
			Name:    n.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not started"),
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    n.Name(),
		Healthy: true,
		Error:   nil,
	}, nil
}

func (n *NudgeComponent) GetScheduler() *nudge.Scheduler {
	return n.sched
}
