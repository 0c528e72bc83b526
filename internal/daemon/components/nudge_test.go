package components

import (
	"context"
	"testing"

	"github.com/harunnryd/heike/internal/config"
	"github.com/harunnryd/heike/internal/trace"
)

func newTestCogLoopComponent(t *testing.T) *CogLoopComponent {
	t.Helper()
	comp := NewCogLoopComponent(&config.Config{}, trace.NewMemory(), nil, nil, nil)
	if err := comp.Init(context.Background()); err != nil {
		t.Fatalf("CogLoopComponent.Init() error = %v", err)
	}
	return comp
}

func TestNudgeComponent_InitStartStop(t *testing.T) {
	cogLoopComp := newTestCogLoopComponent(t)
	comp := NewNudgeComponent(&config.Config{}, cogLoopComp, nil)

	if comp.Name() != "Nudge" {
		t.Errorf("Name() = %v, want Nudge", comp.Name())
	}
	if got := comp.Dependencies(); len(got) != 1 || got[0] != "CogLoop" {
		t.Errorf("Dependencies() = %v, want [CogLoop]", got)
	}

	ctx := context.Background()
	if err := comp.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if comp.GetScheduler() == nil {
		t.Error("GetScheduler() returned nil after Init")
	}

	if err := comp.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	health, err := comp.Health(ctx)
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if !health.Healthy {
		t.Errorf("Health() = %+v, want Healthy=true", health)
	}

	if err := comp.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestNudgeComponent_HealthBeforeStart(t *testing.T) {
	cogLoopComp := newTestCogLoopComponent(t)
	comp := NewNudgeComponent(&config.Config{}, cogLoopComp, nil)

	ctx := context.Background()
	if err := comp.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	health, err := comp.Health(ctx)
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if health.Healthy {
		t.Error("Health() before Start() should report unhealthy")
	}
}
