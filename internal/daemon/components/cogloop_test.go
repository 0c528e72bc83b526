package components

import (
	"context"
	"testing"

	"github.com/harunnryd/heike/internal/config"
	"github.com/harunnryd/heike/internal/trace"
)

func TestCogLoopComponent_InitStartStop(t *testing.T) {
	cfg := &config.Config{}
	comp := NewCogLoopComponent(cfg, trace.NewMemory(), nil, nil, nil)

	if comp.Name() != "CogLoop" {
		t.Errorf("Name() = %v, want CogLoop", comp.Name())
	}
	if len(comp.Dependencies()) != 0 {
		t.Errorf("Dependencies() = %v, want empty", comp.Dependencies())
	}

	ctx := context.Background()
	if err := comp.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if comp.GetRunner() == nil {
		t.Error("GetRunner() returned nil after Init")
	}
	if comp.GetLoop() == nil {
		t.Error("GetLoop() returned nil after Init")
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

func TestCogLoopComponent_InitRejectsMissingConfig(t *testing.T) {
	comp := NewCogLoopComponent(nil, trace.NewMemory(), nil, nil, nil)
	if err := comp.Init(context.Background()); err == nil {
		t.Error("Init() with nil config: expected error, got nil")
	}
}

func TestCogLoopComponent_InitRejectsMissingTraces(t *testing.T) {
	comp := NewCogLoopComponent(&config.Config{}, nil, nil, nil, nil)
	if err := comp.Init(context.Background()); err == nil {
		t.Error("Init() with nil traces: expected error, got nil")
	}
}

func TestCogLoopComponent_HealthBeforeStart(t *testing.T) {
	comp := NewCogLoopComponent(&config.Config{}, trace.NewMemory(), nil, nil, nil)
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
