// Package nudge implements the Nudge Scheduler (C11): a bounded,
// fire-time-ordered priority queue of proactive re-entries into the
// Cognitive Loop, with a tick-loop/graceful-drain lifecycle and direct
// fire-time scheduling rather than cron-string parsing.
package nudge

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/heike/internal/clock"
	"github.com/harunnryd/heike/internal/cogloop"
	"github.com/harunnryd/heike/internal/telemetry"
)

// Proactor re-enters the Cognitive Loop for a fired nudge. The subset
// of cogloop.Loop the scheduler depends on.
type Proactor interface {
	InitiateProactive(ctx context.Context, userID, taskID string) cogloop.Result
}

// task is one registered, not-yet-fired (or cancelled) nudge.
type task struct {
	userID    string
	taskID    string
	fireAt    time.Time
	index     int // heap index, maintained by container/heap
	cancelled bool
}

// pqueue is a min-heap on fireAt, satisfying container/heap.Interface.
type pqueue []*task

func (pq pqueue) Len() int           { return len(pq) }
func (pq pqueue) Less(i, j int) bool { return pq[i].fireAt.Before(pq[j].fireAt) }
func (pq pqueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}
func (pq *pqueue) Push(x any) {
	t := x.(*task)
	t.index = len(*pq)
	*pq = append(*pq, t)
}
func (pq *pqueue) Pop() any {
	old := *pq
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*pq = old[:n-1]
	return t
}

// key identifies a (user_id, task_id) pair for the "only most-recent
// fire delivered" rule, per spec.md §4.9.
type key struct {
	userID string
	taskID string
}

// Handle is returned by Register and lets the caller cancel a nudge
// before it fires.
type Handle struct {
	s *Scheduler
	t *task
}

// Cancel removes the nudge if it hasn't fired yet. Safe to call
// multiple times or after the nudge has already fired (a no-op then).
func (h Handle) Cancel() {
	h.s.cancel(h.t)
}

// Scheduler is the Nudge Scheduler (C11).
type Scheduler struct {
	proactor Proactor
	clk      clock.Clock
	logger   *slog.Logger

	tickInterval time.Duration
	maxQueueSize int

	mu       sync.Mutex
	queue    pqueue
	byKey    map[key]*task // latest live task per (user,task) pair

	wg      sync.WaitGroup
	cancelFn context.CancelFunc
	done    chan struct{}

	metrics *telemetry.Metrics
}

// SetMetrics wires the Telemetry component (C12) into the scheduler;
// nil disables emission.
func (s *Scheduler) SetMetrics(m *telemetry.Metrics) {
	s.metrics = m
}

// New constructs a Scheduler. tickInterval and maxQueueSize bound the
// wake-up cadence and the number of pending (unfired) nudges.
func New(proactor Proactor, clk clock.Clock, tickInterval time.Duration, maxQueueSize int, logger *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if tickInterval <= 0 {
		tickInterval = time.Minute
	}
	if maxQueueSize <= 0 {
		maxQueueSize = 10000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		proactor:     proactor,
		clk:          clk,
		logger:       logger,
		tickInterval: tickInterval,
		maxQueueSize: maxQueueSize,
		byKey:        make(map[key]*task),
	}
}

// ErrQueueFull is returned by Register once maxQueueSize pending
// nudges are already queued.
type ErrQueueFull struct{ Size int }

func (e ErrQueueFull) Error() string {
	return fmt.Sprintf("nudge: queue full at %d pending entries", e.Size)
}

// Register schedules a nudge for (userID, taskID) at fireAt. If an
// earlier nudge for the same (userID, taskID) pair is still pending,
// it is superseded (cancelled) by this one — only the most recent
// registration for a given pair is ever delivered, per spec.md §4.9.
func (s *Scheduler) Register(userID, taskID string, fireAt time.Time) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) >= s.maxQueueSize {
		return Handle{}, ErrQueueFull{Size: len(s.queue)}
	}

	k := key{userID: userID, taskID: taskID}
	if prev, ok := s.byKey[k]; ok {
		prev.cancelled = true
	}

	t := &task{userID: userID, taskID: taskID, fireAt: fireAt}
	heap.Push(&s.queue, t)
	s.byKey[k] = t

	if s.metrics != nil {
		s.metrics.SetNudgePending(len(s.queue))
	}

	return Handle{s: s, t: t}, nil
}

func (s *Scheduler) cancel(t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.cancelled = true
	k := key{userID: t.userID, taskID: t.taskID}
	if s.byKey[k] == t {
		delete(s.byKey, k)
	}
}

// Start begins the tick loop. It returns once the first tick has been
// scheduled; call Stop to drain and stop.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel
	s.done = make(chan struct{})

	s.wg.Add(1)
	go s.run(runCtx)
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.done)

	ticker := s.clk.NewTimer(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.fireDue(ctx)
			ticker = s.clk.NewTimer(s.tickInterval)
		}
	}
}

// fireDue pops every task whose fireAt is <= now, skipping cancelled
// ones, and fires each in fire-time order (the heap already guarantees
// this). Because superseded tasks are marked cancelled rather than
// removed from the heap, a catch-up storm for one (user,task) pair
// collapses to at most one delivery: only the live (non-superseded)
// entry for that pair was ever reachable via byKey, and every earlier
// one was already flagged cancelled at Register time.
func (s *Scheduler) fireDue(ctx context.Context) {
	now := s.clk.Now()

	var due []*task
	s.mu.Lock()
	for len(s.queue) > 0 && !s.queue[0].fireAt.After(now) {
		t := heap.Pop(&s.queue).(*task)
		if t.cancelled {
			continue
		}
		k := key{userID: t.userID, taskID: t.taskID}
		if s.byKey[k] == t {
			delete(s.byKey, k)
		}
		due = append(due, t)
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.mu.Lock()
		s.metrics.SetNudgePending(len(s.queue))
		s.mu.Unlock()
	}

	for _, t := range due {
		s.fire(ctx, t)
	}
}

func (s *Scheduler) fire(ctx context.Context, t *task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("nudge proactor panicked", "panic", r, "user_id", t.userID, "task_id", t.taskID)
		}
	}()
	if s.proactor == nil {
		return
	}
	s.proactor.InitiateProactive(ctx, t.userID, t.taskID)
	if s.metrics != nil {
		s.metrics.RecordNudgeFired()
	}
}

// Stop cancels the tick loop and waits for the in-flight tick (if any)
// to finish. No separate in-flight-task counter is needed since nudge
// firing happens synchronously within a single tick.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancelFn == nil {
		return nil
	}
	s.cancelFn()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports how many nudges are currently queued (including any
// already-cancelled entries not yet swept by a tick).
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
