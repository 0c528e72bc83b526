// Package egress implements the outbound half of proactive nudge
// delivery: internal/cogloop.Loop's Notifier seam. It keeps the
// teacher's adapter-registry-plus-session-lookup shape (Register an
// adapter.OutputAdapter per source, resolve which one to use from the
// session's recorded source metadata) but adapts the contract from the
// teacher's Send(ctx, sessionID, content) error to spec.md §6's
// send(user_id, channel, message, tier) -> bool, since session id and
// user id are the same key in this runtime (see
// adapter.CogLoopRunner.Execute) and a failed delivery is reported as
// false rather than as an error.
package egress

import (
	"context"
	"log/slog"
	"sync"

	"github.com/harunnryd/heike/internal/adapter"
	"github.com/harunnryd/heike/internal/errors"
	"github.com/harunnryd/heike/internal/store"
)

// Notifier is the outbound delivery surface internal/cogloop.Loop
// depends on to satisfy its Notifier interface, plus the adapter
// registry management the daemon composition root needs at startup.
type Notifier interface {
	// Register registers an output adapter keyed by its own Name().
	Register(a adapter.OutputAdapter) error

	// Unregister removes an output adapter.
	Unregister(name string) error

	// Send delivers message to userID over channel (when channel is
	// non-empty it overrides the session's recorded source; otherwise
	// the session's source metadata selects the adapter). Returns
	// whether delivery succeeded; it never returns an error since the
	// Notifier contract is a boolean per spec.md §6.
	Send(ctx context.Context, userID, channel, message, tier string) bool

	// Health checks egress health and all registered adapters.
	Health(ctx context.Context) error

	// ListAdapters returns all registered adapters.
	ListAdapters() []adapter.OutputAdapter
}

// DefaultNotifier is the production Notifier, grounded in the teacher's
// DefaultEgress: a name-keyed adapter registry plus session-metadata
// routing.
type DefaultNotifier struct {
	mu       sync.RWMutex
	adapters map[string]adapter.OutputAdapter
	storeFn  func() *store.Worker
}

// New builds a DefaultNotifier that resolves its store lazily through
// storeFn at Send time, since the daemon composition root constructs
// the Notifier before StoreWorkerComponent.Init has populated its
// worker (e.g. storeComp.GetWorker bound as a method value).
func New(storeFn func() *store.Worker) *DefaultNotifier {
	return &DefaultNotifier{
		adapters: make(map[string]adapter.OutputAdapter),
		storeFn:  storeFn,
	}
}

func (e *DefaultNotifier) Register(a adapter.OutputAdapter) error {
	if a == nil {
		return errors.InvalidInput("adapter cannot be nil")
	}

	name := a.Name()
	if name == "" {
		return errors.InvalidInput("adapter name cannot be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.adapters[name]; exists {
		return errors.ErrConflict
	}

	e.adapters[name] = a
	slog.Info("Egress adapter registered", "name", name)
	return nil
}

func (e *DefaultNotifier) Unregister(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.adapters[name]; !exists {
		return errors.NotFound("adapter not found: " + name)
	}

	delete(e.adapters, name)
	slog.Info("Egress adapter unregistered", "name", name)
	return nil
}

// Send resolves userID's session, picks an adapter (channel overrides
// the session's recorded source when non-empty), and delivers message.
// Any resolution or delivery failure is logged and reported as a
// non-delivery rather than propagated, matching the Notifier contract.
func (e *DefaultNotifier) Send(ctx context.Context, userID, channel, message, tier string) bool {
	var st *store.Worker
	if e.storeFn != nil {
		st = e.storeFn()
	}
	if st == nil {
		slog.Warn("Egress has no store configured, cannot resolve session", "user_id", userID)
		return false
	}

	source := channel
	if source == "" {
		sess, err := st.GetSession(userID)
		if err != nil || sess == nil {
			slog.Warn("Egress could not resolve session", "user_id", userID, "error", err)
			return false
		}
		source = sess.Metadata["source"]
	}
	if source == "" {
		slog.Warn("Egress has no source to route through", "user_id", userID)
		return false
	}

	a, err := e.getAdapter(source)
	if err != nil {
		slog.Warn("Egress has no adapter for source", "user_id", userID, "source", source)
		return false
	}

	if err := a.Send(ctx, userID, message); err != nil {
		slog.Warn("Egress delivery failed", "user_id", userID, "source", source, "tier", tier, "error", err)
		return false
	}

	slog.Debug("Nudge delivered", "user_id", userID, "source", source, "tier", tier, "content_length", len(message))
	return true
}

func (e *DefaultNotifier) getAdapter(name string) (adapter.OutputAdapter, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, ok := e.adapters[name]
	if !ok {
		return nil, errors.NotFound("no adapter found for source: " + name)
	}

	return a, nil
}

func (e *DefaultNotifier) Health(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.adapters) == 0 {
		return errors.Internal("no adapters registered")
	}

	var unhealthy []string
	for name, a := range e.adapters {
		if err := a.Health(ctx); err != nil {
			unhealthy = append(unhealthy, name)
			slog.Warn("Adapter unhealthy", "name", name, "error", err)
		}
	}

	if len(unhealthy) > 0 {
		return errors.Transient("adapters unhealthy")
	}

	return nil
}

func (e *DefaultNotifier) ListAdapters() []adapter.OutputAdapter {
	e.mu.RLock()
	defer e.mu.RUnlock()

	adapters := make([]adapter.OutputAdapter, 0, len(e.adapters))
	for _, a := range e.adapters {
		adapters = append(adapters, a)
	}
	return adapters
}

var _ Notifier = (*DefaultNotifier)(nil)
