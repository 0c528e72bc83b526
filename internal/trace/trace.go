// Package trace implements the append-only audit log (C2) the cognitive
// loop, webhook router, and circuit breakers write to. Grounded in
// internal/store.Worker's transcript writer: a single-writer append log
// plus an in-memory index for read-your-writes lookups.
package trace

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Record is an append-only audit entry. Writes are never overwritten;
// retention deletes only whole records past a threshold (see Memory.Prune).
type Record struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	EventType  string         `json:"event_type"`
	Payload    map[string]any `json:"payload,omitempty"`
	TaskID     string         `json:"task_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Source     string         `json:"source,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
}

// Well-known event types recorded by the cognitive loop and webhook router.
const (
	EventCognitiveInteraction = "cognitive_interaction"
	EventSafetyOverride       = "safety_override"
	EventAnchorResponse       = "anchor_response"
	EventEmergencyResponse    = "emergency_response"
	EventError                = "error"
	EventWebhookEvent         = "webhook_event"
)

// Store is the interface the core depends on. Implementations must
// provide read-your-writes consistency within a single process: a
// Recent call immediately following an Append from the same writer
// observes that write. Cross-process consistency is out of scope.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Recent(ctx context.Context, userID string, limit int) ([]Record, error)
	Get(ctx context.Context, id string) (*Record, error)
}

// NewID returns a lexically-sortable trace id.
func NewID() string {
	return ulid.Make().String()
}

// Memory is an in-process Store backed by per-user slices under a
// single mutex, matching spec.md §5's "TraceStore... thread-safe per
// their interface" guard policy.
type Memory struct {
	mu      sync.Mutex
	byID    map[string]Record
	byUser  map[string][]string // userID -> ordered trace ids (receipt order)
	onWrite func(Record)        // optional fan-out hook, e.g. for a file-backed tee
}

// NewMemory returns an empty in-memory trace store.
func NewMemory() *Memory {
	return &Memory{
		byID:   make(map[string]Record),
		byUser: make(map[string][]string),
	}
}

func (m *Memory) Append(ctx context.Context, rec Record) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if rec.ID == "" {
		rec.ID = NewID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	m.mu.Lock()
	m.byID[rec.ID] = rec
	m.byUser[rec.UserID] = append(m.byUser[rec.UserID], rec.ID)
	hook := m.onWrite
	m.mu.Unlock()

	if hook != nil {
		hook(rec)
	}
	return nil
}

func (m *Memory) Recent(ctx context.Context, userID string, limit int) ([]Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.byUser[userID]
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}
	start := len(ids) - limit
	out := make([]Record, 0, limit)
	for _, id := range ids[start:] {
		out = append(out, m.byID[id])
	}
	// Most-recent-first, matching how the Frame Builder consumes recent traces.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) Get(ctx context.Context, id string) (*Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Prune deletes whole records whose timestamp is older than cutoff,
// satisfying the invariant that retention removes only whole records.
func (m *Memory) Prune(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for user, ids := range m.byUser {
		kept := ids[:0]
		for _, id := range ids {
			rec := m.byID[id]
			if rec.Timestamp.Before(cutoff) {
				delete(m.byID, id)
				removed++
				continue
			}
			kept = append(kept, id)
		}
		m.byUser[user] = kept
	}
	return removed
}

// OnWrite registers a hook invoked synchronously after every successful
// Append, used by File to tee records to disk without owning the
// in-memory index itself.
func (m *Memory) OnWrite(fn func(Record)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onWrite = fn
}
