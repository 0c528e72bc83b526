package components

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/heike/internal/daemon"
	"github.com/harunnryd/heike/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
)

// TelemetryComponent owns the structured observability sink (C12):
// one Metrics registry and one Audit logger, shared by every other
// component so the Cognitive Loop, the Webhook Router, the Nudge
// Scheduler and the adapter manager emit to the same series rather than
// each standing up its own private registry. The Rate Limiter is not
// wired to it, so the rate-limit series are never written.
type TelemetryComponent struct {
	mu          sync.RWMutex
	metrics     *telemetry.Metrics
	audit       *telemetry.Audit
	initialized bool
}

func NewTelemetryComponent() *TelemetryComponent {
	return &TelemetryComponent{}
}

func (t *TelemetryComponent) Name() string {
	return "Telemetry"
}

func (t *TelemetryComponent) Dependencies() []string {
	return []string{}
}

func (t *TelemetryComponent) Init(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics = telemetry.New(prometheus.NewRegistry())
	t.audit = telemetry.NewAudit(slog.Default())
	t.initialized = true
	slog.Info("Telemetry initialized", "component", t.Name())
	return nil
}

func (t *TelemetryComponent) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized {
		return fmt.Errorf("Telemetry not initialized")
	}
	slog.Info("Telemetry started", "component", t.Name())
	return nil
}

func (t *TelemetryComponent) Stop(ctx context.Context) error {
	return nil
}

func (t *TelemetryComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.initialized {
		return &daemon.ComponentHealth{Name: t.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	return &daemon.ComponentHealth{Name: t.Name(), Healthy: true}, nil
}

// GetMetrics returns the shared Metrics registry.
func (t *TelemetryComponent) GetMetrics() *telemetry.Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.metrics
}

// GetAudit returns the shared Audit logger.
func (t *TelemetryComponent) GetAudit() *telemetry.Audit {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.audit
}
