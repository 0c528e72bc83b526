package frame

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/harunnryd/heike/internal/config"
	"github.com/harunnryd/heike/internal/framecache"
	"github.com/harunnryd/heike/internal/trace"
)

// CalendarSource and EnvironmentSource are optional external context
// providers. A nil source is simply skipped, lowering the built Frame's
// Confidence, per spec.md §4.4's "proceeds without them" rule.
type CalendarSource interface {
	CalendarEvents(ctx context.Context, userID string) ([]ContextItem, error)
}

type EnvironmentSource interface {
	EnvironmentState(ctx context.Context, userID string) ([]ContextItem, error)
}

// Builder assembles Frames (C6).
type Builder struct {
	traces  trace.Store
	cache   framecache.Store
	weights Weights

	traceLimit int
	cacheTTL   time.Duration

	calendar    CalendarSource
	environment EnvironmentSource
}

// Option configures optional Builder sources.
type Option func(*Builder)

func WithCalendar(c CalendarSource) Option {
	return func(b *Builder) { b.calendar = c }
}

func WithEnvironment(e EnvironmentSource) Option {
	return func(b *Builder) { b.environment = e }
}

// New constructs a Builder from the Trace Store, Frame Store cache, and
// configuration. cacheTTL is config.FrameConfig.TraceTTL already parsed.
func New(traces trace.Store, cache framecache.Store, cfg config.FrameConfig, cacheTTL time.Duration, opts ...Option) *Builder {
	limit := cfg.MemoryTraceLimit
	if limit <= 0 {
		limit = 5
	}
	b := &Builder{
		traces:     traces,
		cache:      cache,
		traceLimit: limit,
		cacheTTL:   cacheTTL,
		weights: Weights{
			LoadTrigger:        cfg.LoadTriggerWeight,
			Fatigue:            cfg.FatigueWeight,
			Idle:               cfg.IdleWeight,
			AccessibilityFloor: cfg.AccessibilityFloor,
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build assembles a Frame for (userID, agentID, taskFocus). It
// short-circuits to a cached Frame when one built within cacheTTL
// matches the same key, per spec.md §4.4.
func (b *Builder) Build(ctx context.Context, userID, agentID, taskFocus string) (*Frame, error) {
	key := framecache.Key(userID, agentID, taskFocus)
	if cached, ok := b.cache.Get(key); ok {
		if f, ok := cached.(*Frame); ok {
			return f, nil
		}
	}

	items := make([]ContextItem, 0, b.traceLimit+2)
	confidence := 1.0

	recent, err := b.traces.Recent(ctx, userID, b.traceLimit)
	if err != nil {
		confidence -= 0.2
	} else {
		for _, rec := range recent {
			items = append(items, ContextItem{
				Type:       ItemMemoryTrace,
				Payload:    rec.Payload,
				Source:     rec.Source,
				Confidence: confidenceOrDefault(rec.Confidence),
				Timestamp:  rec.Timestamp,
			})
		}
	}

	if b.calendar != nil {
		evts, err := b.calendar.CalendarEvents(ctx, userID)
		if err != nil {
			confidence -= 0.1
		} else {
			items = append(items, evts...)
		}
	} else {
		confidence -= 0.05
	}

	if b.environment != nil {
		envs, err := b.environment.EnvironmentState(ctx, userID)
		if err != nil {
			confidence -= 0.1
		} else {
			items = append(items, envs...)
		}
	} else {
		confidence -= 0.05
	}

	load, accessibility, action := score(items, b.weights)

	f := &Frame{
		ID:                 ulid.Make().String(),
		UserID:             userID,
		AgentID:            agentID,
		TaskFocus:          taskFocus,
		CreatedAt:          time.Now(),
		Items:              items,
		CognitiveLoad:      load,
		AccessibilityScore: accessibility,
		RecommendedAction:  action,
		Confidence:         clamp01(confidence),
		Degraded:           confidence < 1.0,
	}

	b.cache.Put(key, f, b.cacheTTL)
	return f, nil
}

func confidenceOrDefault(c float64) float64 {
	if c <= 0 {
		return 0.7
	}
	return c
}
