package components

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/harunnryd/heike/internal/clock"
	"github.com/harunnryd/heike/internal/config"
	"github.com/harunnryd/heike/internal/daemon"
	"github.com/harunnryd/heike/internal/trace"
	"github.com/harunnryd/heike/internal/webhook"
)

// WebhookComponent owns the inbound Webhook Router (C10) and its HTTP
// transport, the one externally-reachable surface this runtime serves
// itself (the chat/session/approval CRUD surface is explicitly out of
// scope and is not built here).
type WebhookComponent struct {
	cfg           *config.WebhookConfig
	traces        trace.Store
	cogLoopComp   *CogLoopComponent
	telemetryComp *TelemetryComponent
	ingressComp   *IngressComponent

	mu          sync.RWMutex
	router      *webhook.Router
	server      *http.Server
	initialized bool
	started     bool
}

// NewWebhookComponent wires cogLoopComp (may be nil, leaving the
// AutomationTrigger a no-op), telemetryComp (may be nil, disabling C12
// emission), and ingressComp (may be nil, disabling C4 admission
// control) into the Webhook Router. The ingress Rate Limiter instance
// is reused rather than constructing a second one, since both surfaces
// gate the same underlying adaptive budget.
func NewWebhookComponent(cfg *config.WebhookConfig, traces trace.Store, cogLoopComp *CogLoopComponent, telemetryComp *TelemetryComponent, ingressComp *IngressComponent) *WebhookComponent {
	return &WebhookComponent{cfg: cfg, traces: traces, cogLoopComp: cogLoopComp, telemetryComp: telemetryComp, ingressComp: ingressComp}
}

func (w *WebhookComponent) Name() string {
	return "Webhook"
}

func (w *WebhookComponent) Dependencies() []string {
	var deps []string
	if w.cogLoopComp != nil {
		deps = append(deps, "CogLoop")
	}
	if w.telemetryComp != nil {
		deps = append(deps, "Telemetry")
	}
	if w.ingressComp != nil {
		deps = append(deps, "Ingress")
	}
	return deps
}

func (w *WebhookComponent) Init(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cfg == nil {
		return fmt.Errorf("webhook config not provided")
	}
	if w.traces == nil {
		return fmt.Errorf("trace store not provided")
	}

	dedupWindow, err := config.DurationOrDefault(w.cfg.DedupWindow, config.DefaultWebhookDedupWindow)
	if err != nil {
		return fmt.Errorf("parse webhook dedup window: %w", err)
	}
	handlerTimeout, err := config.DurationOrDefault(w.cfg.HandlerTimeout, config.DefaultWebhookHandlerTimeout)
	if err != nil {
		return fmt.Errorf("parse webhook handler timeout: %w", err)
	}

	var opts []webhook.Option
	if w.cogLoopComp != nil {
		if loop := w.cogLoopComp.GetLoop(); loop != nil {
			trigger := webhook.NewCogLoopTrigger(loop, config.DefaultWebhookAutomationUserID)
			opts = append(opts, webhook.WithAutomationTrigger(trigger))
		}
	}

	w.router = webhook.New(w.cfg.Secret, dedupWindow, handlerTimeout, 0, w.traces, clock.New(), opts...)
	w.router.Register(webhook.NewCompletionDetectionHandler())
	if w.telemetryComp != nil {
		w.router.SetTelemetry(w.telemetryComp.GetMetrics(), w.telemetryComp.GetAudit())
	}
	if w.ingressComp != nil {
		w.router.SetRateLimiter(w.ingressComp.GetLimiter())
	}

	addr := w.cfg.Addr
	if addr == "" {
		addr = config.DefaultWebhookAddr
	}
	rateLimit := w.cfg.RateLimitPerMinute
	if rateLimit <= 0 {
		rateLimit = config.DefaultWebhookRateLimitPerMinute
	}

	mux := webhook.NewServerMux(w.router, webhook.HTTPConfig{Addr: addr, RateLimitPerMinute: rateLimit}, slog.Default())
	w.server = &http.Server{Addr: addr, Handler: mux}

	w.initialized = true
	slog.Info("Webhook initialized", "component", w.Name(), "addr", addr)
	return nil
}

func (w *WebhookComponent) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.initialized {
		return fmt.Errorf("Webhook not initialized")
	}

	go func() {
		slog.Info("Webhook server listening", "component", w.Name(), "addr", w.server.Addr)
		if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Webhook server failed", "component", w.Name(), "error", err)
		}
	}()

	w.started = true
	slog.Info("Webhook started", "component", w.Name())
	return nil
}

func (w *WebhookComponent) Stop(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		slog.Info("Webhook not started, skipping stop", "component", w.Name())
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := w.server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Webhook shutdown error", "component", w.Name(), "error", err)
		return err
	}

	w.started = false
	slog.Info("Webhook stopped", "component", w.Name())
	return nil
}

func (w *WebhookComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.initialized {
		return &daemon.ComponentHealth{Name: w.Name(), Healthy: false, Error: fmt.Errorf("not initialized")}, nil
	}
	if !w.started {
		return &daemon.ComponentHealth{Name: w.Name(), Healthy: false, Error: fmt.Errorf("not started")}, nil
	}
	return &daemon.ComponentHealth{Name: w.Name(), Healthy: true}, nil
}

func (w *WebhookComponent) GetRouter() *webhook.Router {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.router
}
