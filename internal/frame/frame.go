// Package frame implements the Frame Builder (C6): assembles a bounded,
// scored Frame of ContextItems from the Trace Store and optional
// external sources, consulting internal/framecache before doing the
// work again. Scoring is a bounded weighted sum over named inputs;
// memory retrieval is served directly by internal/trace.Store.Recent.
package frame

import (
	"time"
)

// ContextItem is a typed, timestamped piece of context inside a Frame.
type ContextItem struct {
	Type       string         `json:"type"`
	Payload    map[string]any `json:"payload,omitempty"`
	Source     string         `json:"source,omitempty"`
	Confidence float64        `json:"confidence"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Well-known ContextItem types, per spec.md §4.2.
const (
	ItemMemoryTrace   = "memory-trace"
	ItemCalendarEvent = "calendar-event"
	ItemUserState     = "user-state"
	ItemEnvironment   = "environment"
	ItemTask          = "task"
	ItemAchievement   = "achievement"
)

// Recommended actions a Frame's scores classify into.
const (
	ActionNone            = "none"
	ActionSimplifyContext = "simplify_context"
	ActionClarifyFocus    = "clarify_focus"
)

// Frame is the unit of context handed to the LLM Router. Once built it
// is never mutated: CognitiveLoad and AccessibilityScore are pure
// functions of Items at the moment of derivation, satisfying spec.md
// §9's "frame is owned and read-only after creation" lifecycle.
type Frame struct {
	ID                 string        `json:"id"`
	UserID             string        `json:"user_id"`
	AgentID            string        `json:"agent_id"`
	TaskFocus          string        `json:"task_focus,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	Items              []ContextItem `json:"items"`
	Actions            []string      `json:"actions,omitempty"`
	CognitiveLoad      float64       `json:"cognitive_load"`
	AccessibilityScore float64       `json:"accessibility_score"`
	RecommendedAction  string        `json:"recommended_action"`
	Confidence         float64       `json:"confidence"`
	Degraded           bool          `json:"degraded"`
}

// perItemScale bounds any single item's contribution so that a handful
// of items of the same category are needed to saturate the load at 1.0,
// while keeping the sum (and hence monotonicity) independent of how
// many items are present overall.
const perItemScale = 0.3

// score computes CognitiveLoad, AccessibilityScore and RecommendedAction
// from items. It is a pure function: calling it twice on an identical
// items slice yields identical results, satisfying spec.md §4.2's
// "pure function of the ContextItems" invariant. Each item contributes
// a non-negative amount to a running sum that is then clamped to
// [0,1] — never averaged — so appending any item to items can only
// raise or hold load steady, satisfying the required monotonicity
// invariant (averaging over item count would let a low-confidence
// addition pull the score down).
func score(items []ContextItem, weights Weights) (load, accessibility float64, action string) {
	if len(items) == 0 {
		return 0, 1, ActionNone
	}

	var sum float64
	for _, it := range items {
		contribution := it.Confidence
		if contribution <= 0 {
			contribution = 0.1 // an item with unknown confidence still adds some load
		}
		switch it.Type {
		case ItemTask, ItemCalendarEvent:
			sum += weights.LoadTrigger * contribution * perItemScale
		case ItemUserState:
			sum += weights.Fatigue * contribution * perItemScale
		case ItemEnvironment:
			sum += weights.Idle * contribution * perItemScale
		default:
			sum += weights.LoadTrigger * contribution * perItemScale * 0.5
		}
	}
	load = clamp01(sum)

	accessibility = clamp01(1 - load*0.85)
	if accessibility < weights.AccessibilityFloor {
		accessibility = weights.AccessibilityFloor
	}

	switch {
	case load >= 0.75:
		action = ActionSimplifyContext
	case load >= 0.45 && accessibility < 0.6:
		action = ActionClarifyFocus
	default:
		action = ActionNone
	}
	return load, accessibility, action
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Weights parameterizes the cognitive-load scorer; populated from
// config.FrameConfig by Builder.
type Weights struct {
	LoadTrigger        float64
	Fatigue            float64
	Idle               float64
	AccessibilityFloor float64
}
