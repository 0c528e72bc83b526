package webhook

import (
	"context"
	"fmt"

	"github.com/harunnryd/heike/internal/cogloop"
)

// Proactor is the subset of internal/cogloop.Loop the automation
// trigger needs to re-enter the Cognitive Loop for a webhook event,
// mirroring internal/nudge.Proactor's seam.
type Proactor interface {
	InitiateProactive(ctx context.Context, userID, taskID string) cogloop.Result
}

// CogLoopTrigger is the production AutomationTrigger: it re-enters the
// Cognitive Loop as a proactive nudge scoped to the repository the
// webhook event names, grounded in original_source's
// automation_triggered flag on GitHubAutomationEngine calls following
// _handle_push_event/_handle_pr_closed.
type CogLoopTrigger struct {
	proactor Proactor
	userID   string // session/user the triggered nudge is attributed to
}

// NewCogLoopTrigger builds a CogLoopTrigger that attributes every
// triggered nudge to userID (e.g. a dedicated "webhook" automation
// session), since GitHub delivers no end-user identity of its own.
func NewCogLoopTrigger(proactor Proactor, userID string) *CogLoopTrigger {
	return &CogLoopTrigger{proactor: proactor, userID: userID}
}

// Enqueue re-enters the Cognitive Loop with the event's delivery id as
// the task focus. InitiateProactive runs synchronously, so Process waits
// for it (bounded by the loop's own processing timeout); an OutcomeError
// is returned as an error, which Process records without failing.
func (t *CogLoopTrigger) Enqueue(ctx context.Context, evt Event) error {
	if t.proactor == nil {
		return fmt.Errorf("webhook: no proactor configured")
	}
	taskID := fmt.Sprintf("webhook:%s:%s", evt.EventType, evt.DeliveryID)
	res := t.proactor.InitiateProactive(ctx, t.userID, taskID)
	if res.Outcome == cogloop.OutcomeError {
		return fmt.Errorf("webhook automation trigger: %w", res.Err)
	}
	return nil
}
