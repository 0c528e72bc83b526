// Package cogloop implements the Cognitive Loop (C9), the central
// orchestrator: consult the psychological circuit breaker, build a
// Frame, route through the LLM Router (which itself consults the
// Safety Monitor), then fan out trace/breaker/action-derivation work.
// Grounded in the teacher's (deleted) internal/cognitive
// DefaultCognitiveEngine.Run fan-out-three-tasks-and-join idiom.
package cogloop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/harunnryd/heike/internal/breaker"
	"github.com/harunnryd/heike/internal/concurrency"
	heikeErrors "github.com/harunnryd/heike/internal/errors"
	"github.com/harunnryd/heike/internal/frame"
	"github.com/harunnryd/heike/internal/llmrouter"
	"github.com/harunnryd/heike/internal/ratelimit"
	"github.com/harunnryd/heike/internal/telemetry"
	"github.com/harunnryd/heike/internal/trace"
)

// Nudge tiers a proactive re-entry into Process may carry.
const (
	NudgeTierNone   = ""
	NudgeTierGentle = "gentle"
)

// Result is the sum-type outcome of Process, replacing the teacher's
// duck-typed "success" boolean per spec.md §9's redesign flag: callers
// switch on Outcome rather than checking an Err field that may or may
// not be populated consistently.
type Result struct {
	Outcome          Outcome
	Response         llmrouter.LLMResponse
	Frame            *frame.Frame
	CognitiveLoad    float64
	ActionsTaken     []string
	ProcessingTimeMS int64
	Err              error
}

// Outcome classifies how a Process call concluded.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeAnchor    Outcome = "anchor"
	OutcomeSafety    Outcome = "safety_override"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeError     Outcome = "error"
)

// Router is the subset of llmrouter.Router the loop depends on.
type Router interface {
	Process(ctx context.Context, userID, userInput string, frame any, nudgeTier string) (llmrouter.LLMResponse, error)
}

// Notifier delivers a proactive nudge's resulting response to the user,
// per spec.md §6's abstract send(user_id, channel, message, tier) -> bool.
type Notifier interface {
	Send(ctx context.Context, userID, channel, message, tier string) bool
}

// Loop is the Cognitive Loop (C9).
type Loop struct {
	breaker *breaker.Psych
	frames  *frame.Builder
	router  Router
	traces  trace.Store
	notify  Notifier

	metrics *telemetry.Metrics
	audit   *telemetry.Audit
	limiter *ratelimit.Limiter

	fanOutTimeout time.Duration

	mu          sync.Mutex
	processed   int64
	errored     int64
	anchored    int64
	safetyHits  int64
	totalLoadMS int64
}

// New constructs a Loop.
func New(psych *breaker.Psych, frames *frame.Builder, router Router, traces trace.Store, notify Notifier, fanOutTimeout time.Duration) *Loop {
	if fanOutTimeout <= 0 {
		fanOutTimeout = 5 * time.Second
	}
	return &Loop{
		breaker:       psych,
		frames:        frames,
		router:        router,
		traces:        traces,
		notify:        notify,
		fanOutTimeout: fanOutTimeout,
	}
}

// SetTelemetry wires the optional Metrics/Audit sinks (C12). Both may
// be nil, in which case Process/InitiateProactive/ProcessEmergency
// simply skip emission.
func (l *Loop) SetTelemetry(m *telemetry.Metrics, a *telemetry.Audit) {
	l.metrics = m
	l.audit = a
}

// SetRateLimiter wires the Rate Limiter (C4) ahead of Process, gating
// entry into the Cognitive Loop. Proactive nudges are gated as well,
// since InitiateProactive re-enters through Process; ProcessEmergency
// does not consult the limiter. nil disables gating.
func (l *Loop) SetRateLimiter(lim *ratelimit.Limiter) {
	l.limiter = lim
}

func (l *Loop) observe(outcome string, elapsed time.Duration, load float64, hasLoad bool) {
	if l.metrics != nil {
		l.metrics.ObserveCogLoop(outcome, elapsed, load, hasLoad)
	}
}

// anchorResponse is the short, non-demanding response returned while
// the psychological breaker is open, per spec.md §4.2.
func anchorResponse() llmrouter.LLMResponse {
	return llmrouter.LLMResponse{
		Content:    "I'm here when you're ready. No rush.",
		Source:     llmrouter.SourceAnchorMode,
		Confidence: 1.0,
	}
}

// Process is the single most important operation: steps 1-6 of
// spec.md §4.7, in order. Telemetry (C12) is recorded around the
// unwrapped implementation so every return path — including the early
// cancellation check — reports exactly once.
func (l *Loop) Process(ctx context.Context, userID, userInput, taskFocus, nudgeTier string) Result {
	start := time.Now()
	result := l.process(ctx, userID, userInput, taskFocus, nudgeTier, start)
	l.observe(string(result.Outcome), time.Since(start), result.CognitiveLoad, result.Frame != nil)
	if l.audit != nil {
		switch result.Outcome {
		case OutcomeAnchor:
			l.audit.AnchorMode(userID)
		case OutcomeSafety:
			l.audit.SafetyOverride(userID, result.Response.Model)
		}
	}
	if l.metrics != nil {
		state := "closed"
		if result.Outcome == OutcomeAnchor {
			state = "open"
		}
		l.metrics.SetBreakerState("psych", userID, state)
	}
	return result
}

func (l *Loop) process(ctx context.Context, userID, userInput, taskFocus, nudgeTier string, start time.Time) Result {

	select {
	case <-ctx.Done():
		return Result{Outcome: OutcomeCancelled, ProcessingTimeMS: time.Since(start).Milliseconds(), Err: ctx.Err()}
	default:
	}

	// Step 1.5: rate limiter, ahead of any breaker/frame/LLM work.
	if l.limiter != nil {
		decision := l.limiter.Admit(userID)
		if !decision.Admitted {
			l.bump(&l.errored)
			return Result{
				Outcome:          OutcomeError,
				ProcessingTimeMS: time.Since(start).Milliseconds(),
				Err:              heikeErrors.RateLimited(decision.Reason),
			}
		}
		l.limiter.Record(userID)
	}

	// Step 2: psych circuit breaker.
	decision, token := l.breaker.Check(ctx, userID)
	if !decision.Allowed {
		resp := anchorResponse()
		l.recordTrace(ctx, userID, trace.EventAnchorResponse, userInput, resp, 0)
		l.bump(&l.anchored)
		return Result{
			Outcome:          OutcomeAnchor,
			Response:         resp,
			CognitiveLoad:    0.1,
			ProcessingTimeMS: time.Since(start).Milliseconds(),
		}
	}

	// Step 3: Frame Builder. A failing optional source only lowers the
	// Frame's confidence inside Build; an error from Build is fatal here.
	fr, err := l.frames.Build(ctx, userID, "default", taskFocus)
	if err != nil {
		token.Record(false)
		l.recordTrace(ctx, userID, trace.EventError, userInput, llmrouter.LLMResponse{}, 0)
		l.bump(&l.errored)
		return Result{
			Outcome:          OutcomeError,
			ProcessingTimeMS: time.Since(start).Milliseconds(),
			Err:              fmt.Errorf("build frame: %w", err),
		}
	}

	// Step 4: LLM Router (consults Safety Monitor internally).
	resp, err := l.router.Process(ctx, userID, userInput, fr, nudgeTier)
	if err != nil {
		token.Record(false)
		l.recordTrace(ctx, userID, trace.EventError, userInput, llmrouter.LLMResponse{}, fr.CognitiveLoad)
		l.bump(&l.errored)
		return Result{
			Outcome:          OutcomeError,
			Frame:            fr,
			ProcessingTimeMS: time.Since(start).Milliseconds(),
			Err:              fmt.Errorf("route response: %w", err),
		}
	}

	if resp.Source == llmrouter.SourceHardCoded {
		token.Record(true)
		l.recordTrace(ctx, userID, trace.EventSafetyOverride, userInput, resp, fr.CognitiveLoad)
		l.bump(&l.safetyHits)
		return Result{
			Outcome:          OutcomeSafety,
			Response:         resp,
			Frame:            fr,
			CognitiveLoad:    fr.CognitiveLoad,
			ActionsTaken:     []string{"safety_override"},
			ProcessingTimeMS: time.Since(start).Milliseconds(),
		}
	}

	// Step 5: fan out three tasks, all awaited, none blocking the others.
	actions := l.fanOut(ctx, userID, userInput, fr, resp, token)

	l.bump(&l.processed)
	elapsed := time.Since(start).Milliseconds()
	l.mu.Lock()
	l.totalLoadMS += elapsed
	l.mu.Unlock()

	return Result{
		Outcome:          OutcomeSuccess,
		Response:         resp,
		Frame:            fr,
		CognitiveLoad:    fr.CognitiveLoad,
		ActionsTaken:     actions,
		ProcessingTimeMS: elapsed,
	}
}

// fanOut runs action-derivation, the trace write, and the breaker
// success update concurrently, all awaited before returning, matching
// spec.md §4.7 step 5 and §5's "all-settled" join semantic: one
// sub-task panicking or erroring does not prevent the others from
// completing.
func (l *Loop) fanOut(ctx context.Context, userID, userInput string, fr *frame.Frame, resp llmrouter.LLMResponse, token breaker.Token) []string {
	fctx, cancel := context.WithTimeout(ctx, l.fanOutTimeout)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		actions []string
	)
	appendAction := func(a string) {
		mu.Lock()
		actions = append(actions, a)
		mu.Unlock()
	}

	wg.Add(3)

	concurrency.SafeGo(func() {
		defer wg.Done()
		if fr.RecommendedAction != frame.ActionNone {
			appendAction(fr.RecommendedAction)
		}
	}, func(r any) {
		appendAction("action_derivation_panicked")
	})

	concurrency.SafeGo(func() {
		defer wg.Done()
		if err := l.traces.Append(fctx, trace.Record{
			UserID:     userID,
			EventType:  trace.EventCognitiveInteraction,
			Payload:    map[string]any{"input": userInput, "response": resp.Content, "source": resp.Source},
			Confidence: resp.Confidence,
		}); err != nil {
			appendAction("trace_write_failed")
		} else {
			appendAction("trace_recorded")
		}
	}, func(r any) {
		appendAction("trace_write_panicked")
	})

	concurrency.SafeGo(func() {
		defer wg.Done()
		token.Record(true)
		appendAction("breaker_success_recorded")
	}, func(r any) {
		appendAction("breaker_update_panicked")
	})

	wg.Wait()
	return actions
}

func (l *Loop) recordTrace(ctx context.Context, userID, eventType, userInput string, resp llmrouter.LLMResponse, load float64) {
	_ = l.traces.Append(ctx, trace.Record{
		UserID:    userID,
		EventType: eventType,
		Payload:   map[string]any{"input": userInput, "response": resp.Content, "source": resp.Source},
	})
}

func (l *Loop) bump(counter *int64) {
	l.mu.Lock()
	*counter++
	l.mu.Unlock()
}

// InitiateProactive synthesizes a user-input string from taskID and
// re-enters Process with nudge_tier=gentle, per spec.md §4.7's proactive
// entry point: no alternative pipeline, the same safety/circuit-breaker
// properties always apply. On a successful or safety-overridden result,
// the response is delivered outbound through the configured Notifier
// (spec.md §6); delivery failure is audited but never changes Outcome.
func (l *Loop) InitiateProactive(ctx context.Context, userID, taskID string) Result {
	synthesized := fmt.Sprintf("[proactive nudge for task %s]", taskID)
	result := l.Process(ctx, userID, synthesized, taskID, NudgeTierGentle)

	if l.notify != nil && (result.Outcome == OutcomeSuccess || result.Outcome == OutcomeSafety) {
		delivered := l.notify.Send(ctx, userID, "default", result.Response.Content, NudgeTierGentle)
		if delivered && l.audit != nil {
			l.audit.NudgeDelivered(userID, taskID)
		}
	}

	return result
}

// ProcessEmergency forces the request through with circuit-breaker
// state ignored for refusal purposes, per spec.md §6's emergency-flag
// contract: anchor mode never applies to an emergency request.
func (l *Loop) ProcessEmergency(ctx context.Context, userID, userInput string) Result {
	start := time.Now()

	fr, err := l.frames.Build(ctx, userID, "default", "")
	if err != nil {
		fr = &frame.Frame{ID: ulid.Make().String(), UserID: userID}
	}

	resp, err := l.router.Process(ctx, userID, userInput, fr, NudgeTierNone)
	if err != nil {
		l.bump(&l.errored)
		l.observe(string(OutcomeError), time.Since(start), fr.CognitiveLoad, true)
		return Result{
			Outcome:          OutcomeError,
			Frame:            fr,
			ProcessingTimeMS: time.Since(start).Milliseconds(),
			Err:              fmt.Errorf("emergency route: %w", err),
		}
	}

	l.recordTrace(ctx, userID, trace.EventEmergencyResponse, userInput, resp, fr.CognitiveLoad)
	outcome := OutcomeSuccess
	actions := []string{"emergency_bypass"}
	if resp.Source == llmrouter.SourceHardCoded {
		outcome = OutcomeSafety
		actions = append(actions, "safety_override")
		if l.audit != nil {
			l.audit.SafetyOverride(userID, resp.Model)
		}
	}
	l.observe(string(outcome), time.Since(start), fr.CognitiveLoad, true)

	return Result{
		Outcome:          outcome,
		Response:         resp,
		Frame:            fr,
		CognitiveLoad:    fr.CognitiveLoad,
		ActionsTaken:     actions,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	}
}

// Stats reports cumulative processing statistics for telemetry/health.
type Stats struct {
	Processed        int64
	Errored          int64
	Anchored         int64
	SafetyOverrides  int64
	AvgProcessingMS  float64
}

func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	avg := 0.0
	if l.processed > 0 {
		avg = float64(l.totalLoadMS) / float64(l.processed)
	}
	return Stats{
		Processed:       l.processed,
		Errored:         l.errored,
		Anchored:        l.anchored,
		SafetyOverrides: l.safetyHits,
		AvgProcessingMS: avg,
	}
}
