package adapter

import (
	"context"
	"fmt"

	"github.com/harunnryd/heike/internal/cogloop"
	"github.com/harunnryd/heike/internal/ingress"
)

// CogLoopRunner adapts internal/cogloop.Loop to internal/worker.Runner,
// translating a normalized ingress.Event into a Cognitive Loop
// invocation: one narrow Execute method standing between the generic
// event-lane worker and the domain-specific processing engine.
type CogLoopRunner struct {
	loop *cogloop.Loop
}

// NewCogLoopRunner wraps loop for use by internal/worker.Worker.
func NewCogLoopRunner(loop *cogloop.Loop) *CogLoopRunner {
	return &CogLoopRunner{loop: loop}
}

// Execute runs one ingress event through the Cognitive Loop. The
// session id doubles as the user id: this runtime has no separate
// identity layer, and every session belongs to exactly one user.
func (r *CogLoopRunner) Execute(ctx context.Context, evt *ingress.Event) error {
	userID := evt.SessionID
	taskFocus := evt.Metadata["task_focus"]

	res := r.loop.Process(ctx, userID, evt.Content, taskFocus, cogloop.NudgeTierNone)
	if res.Outcome == cogloop.OutcomeError {
		return fmt.Errorf("cognitive loop: %w", res.Err)
	}
	return nil
}
