package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

// completionIndicators mirrors original_source's push-analysis keyword
// list: a commit message or PR title containing one of these is taken
// as a signal that a tracked task may have just finished.
var completionIndicators = []string{"complete", "implement", "finish", "add", "feature"}

type commitPayload struct {
	Message string `json:"message"`
}

type pushPayload struct {
	Ref        string          `json:"ref"`
	Commits    []commitPayload `json:"commits"`
	Repository repoPayload     `json:"repository"`
}

type repoPayload struct {
	FullName string `json:"full_name"`
}

type pullRequestPayload struct {
	Action      string      `json:"action"`
	PullRequest pullRequest `json:"pull_request"`
	Repository  repoPayload `json:"repository"`
}

type pullRequest struct {
	Title  string `json:"title"`
	Number int    `json:"number"`
	Merged bool   `json:"merged"`
}

// CompletionDetectionHandler scans push commit messages and merged pull
// request titles for completion-indicator keywords, grounded in
// original_source's _queue_push_analysis/_queue_merge_analysis. It
// never errors: a miss is simply "nothing detected", not a failure.
type CompletionDetectionHandler struct{}

// NewCompletionDetectionHandler constructs a CompletionDetectionHandler.
func NewCompletionDetectionHandler() *CompletionDetectionHandler {
	return &CompletionDetectionHandler{}
}

func (h *CompletionDetectionHandler) Name() string  { return "completion_detection" }
func (h *CompletionDetectionHandler) Priority() int { return 85 }

func (h *CompletionDetectionHandler) Matches(eventType, action string) bool {
	if eventType == "push" {
		return true
	}
	if eventType == "pull_request" && action == "closed" {
		return true
	}
	return false
}

func (h *CompletionDetectionHandler) Handle(ctx context.Context, evt Event) error {
	switch evt.EventType {
	case "push":
		return h.handlePush(evt)
	case "pull_request":
		return h.handlePullRequest(evt)
	}
	return nil
}

func (h *CompletionDetectionHandler) handlePush(evt Event) error {
	var payload pushPayload
	if err := json.Unmarshal(evt.RawBody, &payload); err != nil {
		slog.Warn("completion_detection: malformed push payload", "delivery_id", evt.DeliveryID, "error", err)
		return nil
	}

	var hits []string
	for _, c := range payload.Commits {
		if containsIndicator(c.Message) {
			hits = append(hits, c.Message)
		}
	}
	if len(hits) > 0 {
		slog.Info("completion_detection: push suggests feature completion",
			"delivery_id", evt.DeliveryID, "repository", payload.Repository.FullName, "matching_commits", len(hits))
	}
	return nil
}

func (h *CompletionDetectionHandler) handlePullRequest(evt Event) error {
	var payload pullRequestPayload
	if err := json.Unmarshal(evt.RawBody, &payload); err != nil {
		slog.Warn("completion_detection: malformed pull_request payload", "delivery_id", evt.DeliveryID, "error", err)
		return nil
	}
	if !payload.PullRequest.Merged {
		return nil
	}
	if containsIndicator(payload.PullRequest.Title) {
		slog.Info("completion_detection: merged PR suggests feature completion",
			"delivery_id", evt.DeliveryID, "repository", payload.Repository.FullName,
			"pr_number", payload.PullRequest.Number, "pr_title", payload.PullRequest.Title)
	}
	return nil
}

func containsIndicator(s string) bool {
	lower := strings.ToLower(s)
	for _, ind := range completionIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

var _ Handler = (*CompletionDetectionHandler)(nil)
