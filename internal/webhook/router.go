// Package webhook implements the Webhook Router (C10): signature
// verification, dedup, persistence, priority-ordered sequential handler
// dispatch, and non-blocking automation-trigger enqueue, per spec.md
// §4.8. Grounded in internal/ingress.Router's
// verify-then-dedup-then-route pipeline shape, generalized from a
// single ingest queue to named, priority-sorted handlers plus a
// cognitive-loop automation trigger.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/heike/internal/clock"
	heikeErrors "github.com/harunnryd/heike/internal/errors"
	"github.com/harunnryd/heike/internal/ratelimit"
	"github.com/harunnryd/heike/internal/telemetry"
	"github.com/harunnryd/heike/internal/trace"
)

var (
	// ErrBadSignature means the request's signature header didn't match
	// the computed HMAC over the raw body; fatal, no side effects.
	ErrBadSignature = fmt.Errorf("webhook: signature verification failed: %w", heikeErrors.ErrUnauthorizedWebhook)
	// ErrEmptySecret means the router has no secret configured and
	// cannot verify anything; also fatal.
	ErrEmptySecret = errors.New("webhook: no signing secret configured")
)

// ProcessingResult is returned from Process.
type ProcessingResult struct {
	Accepted    bool
	Duplicate   bool
	HandlerErrs map[string]error
	Err         error
}

// AutomationTrigger enqueues a synthetic Cognitive Loop invocation in
// response to a processed webhook event. Process calls Enqueue
// synchronously and waits for it to return; a failure is recorded in
// ProcessingResult.HandlerErrs but never fails Process.
type AutomationTrigger interface {
	Enqueue(ctx context.Context, evt Event) error
}

type noopTrigger struct{}

func (noopTrigger) Enqueue(context.Context, Event) error { return nil }

// Router is the Webhook Router (C10).
type Router struct {
	secret         []byte
	dedup          *dedupCache
	traces         trace.Store
	trigger        AutomationTrigger
	handlerTimeout time.Duration
	clk            clock.Clock

	mu       sync.Mutex
	handlers []*registration

	statsMu    sync.Mutex
	count      int64
	totalNS    int64

	metrics *telemetry.Metrics
	audit   *telemetry.Audit
	limiter *ratelimit.Limiter
}

// SetTelemetry wires the Telemetry component (C12) into the router;
// nil values disable the corresponding emission.
func (r *Router) SetTelemetry(m *telemetry.Metrics, a *telemetry.Audit) {
	r.metrics = m
	r.audit = a
}

// SetRateLimiter wires the Rate Limiter (C4) ahead of dispatch, keyed
// by event_type since inbound webhook deliveries carry no per-user
// identity of their own; nil disables gating.
func (r *Router) SetRateLimiter(l *ratelimit.Limiter) {
	r.limiter = l
}

// registration pairs a Handler with the enabled flag original_source's
// WebhookEventHandler carries alongside (event_type, action, priority).
type registration struct {
	handler Handler
	enabled bool
}

// Option configures a Router at construction time.
type Option func(*Router)

// WithAutomationTrigger wires a non-default AutomationTrigger.
func WithAutomationTrigger(t AutomationTrigger) Option {
	return func(r *Router) { r.trigger = t }
}

// New constructs a Router. dedupWindow and handlerTimeout are
// already-parsed durations; dedupCapacity bounds the LRU dedup cache.
func New(secret string, dedupWindow, handlerTimeout time.Duration, dedupCapacity int, traces trace.Store, clk clock.Clock, opts ...Option) *Router {
	if clk == nil {
		clk = clock.New()
	}
	if handlerTimeout <= 0 {
		handlerTimeout = 5 * time.Second
	}
	r := &Router{
		secret:         []byte(secret),
		dedup:          newDedupCache(dedupCapacity, dedupWindow, clk.Now),
		traces:         traces,
		trigger:        noopTrigger{},
		handlerTimeout: handlerTimeout,
		clk:            clk,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a handler to the dispatch set, enabled by default.
// Handlers are re-sorted by Priority (descending) on every Register
// call; ties are broken by registration order since sort.SliceStable
// preserves relative order among equal priorities.
func (r *Router) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, &registration{handler: h, enabled: true})
	sort.SliceStable(r.handlers, func(i, j int) bool {
		return r.handlers[i].handler.Priority() > r.handlers[j].handler.Priority()
	})
}

// SetEnabled toggles dispatch for a registered handler by name without
// removing it from the priority-ordered set. A no-op if name isn't
// registered.
func (r *Router) SetEnabled(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.handlers {
		if reg.handler.Name() == name {
			reg.enabled = enabled
			return
		}
	}
}

// NewDeliveryID generates a delivery id for synthetic/internal events
// that don't carry one from the sender.
func NewDeliveryID() string {
	return uuid.NewString()
}

// Process runs the full pipeline: admit -> verify -> dedup -> persist ->
// dispatch -> automation trigger -> stats. Rate-limit denial and
// signature/parse failures are fatal (no side effects, err wraps
// ErrRateLimited/ErrBadSignature/ErrEmptySecret). Handler and
// automation-trigger failures are isolated: they're returned for
// visibility but never prevent Process from completing.
func (r *Router) Process(ctx context.Context, rawBody []byte, deliveryID, eventType, action, signature string) ProcessingResult {
	start := r.clk.Now()

	if r.limiter != nil {
		subject := "webhook:" + eventType
		decision := r.limiter.Admit(subject)
		if !decision.Admitted {
			err := heikeErrors.RateLimited(decision.Reason)
			if r.audit != nil {
				r.audit.WebhookRejected(deliveryID, err)
			}
			r.observe("rate_limited", r.clk.Now().Sub(start))
			return ProcessingResult{Accepted: false, Err: err}
		}
		r.limiter.Record(subject)
	}

	if err := r.verify(rawBody, signature); err != nil {
		if r.audit != nil {
			r.audit.WebhookRejected(deliveryID, err)
		}
		r.observe("rejected", r.clk.Now().Sub(start))
		return ProcessingResult{Accepted: false, Err: err}
	}

	if deliveryID == "" {
		deliveryID = NewDeliveryID()
	}

	evt := Event{
		DeliveryID: deliveryID,
		EventType:  eventType,
		Action:     action,
		Signature:  signature,
		RawBody:    rawBody,
		ReceivedAt: r.clk.Now(),
	}

	if r.dedup.Seen(deliveryID) {
		r.observe("duplicate", r.clk.Now().Sub(start))
		return ProcessingResult{Accepted: true, Duplicate: true}
	}

	if r.traces != nil {
		_ = r.traces.Append(ctx, trace.Record{
			EventType: trace.EventWebhookEvent,
			Payload: map[string]any{
				"delivery_id": deliveryID,
				"event_type":  eventType,
				"action":      action,
			},
			Source:    "webhook",
			Timestamp: evt.ReceivedAt,
		})
	}

	handlerErrs := r.dispatch(ctx, evt)

	if err := r.trigger.Enqueue(ctx, evt); err != nil {
		if handlerErrs == nil {
			handlerErrs = make(map[string]error)
		}
		handlerErrs["automation_trigger"] = err
	}

	elapsed := r.clk.Now().Sub(start)
	r.recordDuration(elapsed)
	if len(handlerErrs) > 0 {
		r.observe("handler_error", elapsed)
	} else {
		r.observe("accepted", elapsed)
	}

	return ProcessingResult{Accepted: true, HandlerErrs: handlerErrs}
}

func (r *Router) observe(result string, d time.Duration) {
	if r.metrics != nil {
		r.metrics.ObserveWebhook(result, d)
	}
}

// verify computes HMAC-SHA256 over the exact, unmodified raw body
// (no whitespace normalization, per spec.md §4.8) and compares it to
// signature using a constant-time comparison.
func (r *Router) verify(rawBody []byte, signature string) error {
	if len(r.secret) == 0 {
		return ErrEmptySecret
	}
	mac := hmac.New(sha256.New, r.secret)
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	sig := signature
	if len(sig) > 7 && sig[:7] == "sha256=" {
		sig = sig[7:]
	}
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}

// dispatch runs enabled, (event_type, action)-matching handlers
// sequentially in priority order; a handler panic or error is isolated
// and recorded, never aborting the rest.
func (r *Router) dispatch(ctx context.Context, evt Event) map[string]error {
	r.mu.Lock()
	regs := make([]*registration, len(r.handlers))
	copy(regs, r.handlers)
	r.mu.Unlock()

	if len(regs) == 0 {
		return nil
	}

	errs := make(map[string]error)
	for _, reg := range regs {
		if !reg.enabled || !reg.handler.Matches(evt.EventType, evt.Action) {
			continue
		}
		if err := r.runHandler(ctx, reg.handler, evt); err != nil {
			errs[reg.handler.Name()] = err
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (r *Router) runHandler(ctx context.Context, h Handler, evt Event) (err error) {
	hctx, cancel := context.WithTimeout(ctx, r.handlerTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler %s panicked: %v", h.Name(), rec)
		}
	}()

	return h.Handle(hctx, evt)
}

func (r *Router) recordDuration(d time.Duration) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	r.count++
	r.totalNS += d.Nanoseconds()
}

// Stats reports the running average processing time across all
// Process calls that reached the dispatch stage.
type Stats struct {
	Count         int64
	AvgProcessing time.Duration
}

func (r *Router) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	if r.count == 0 {
		return Stats{}
	}
	return Stats{Count: r.count, AvgProcessing: time.Duration(r.totalNS / r.count)}
}
