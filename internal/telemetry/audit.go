package telemetry

import "log/slog"

// Audit is a thin structured-logging facade over slog, used for the
// audit events (safety overrides, breaker trips, anchor-mode entries)
// that warrant a durable log line in addition to a metric. It does not
// configure its own handler: internal/logger.Setup already installs
// the process-wide tint handler the teacher uses, and Audit just
// emits through slog.Default() (or an injected logger for tests).
type Audit struct {
	logger *slog.Logger
}

// NewAudit wraps logger (or slog.Default() if nil) for audit emission.
func NewAudit(logger *slog.Logger) *Audit {
	if logger == nil {
		logger = slog.Default()
	}
	return &Audit{logger: logger}
}

// SafetyOverride logs a Safety Monitor match.
func (a *Audit) SafetyOverride(userID, pattern string) {
	a.logger.Warn("safety override triggered", "user_id", userID, "pattern", pattern)
}

// AnchorMode logs a psych-breaker short-circuit.
func (a *Audit) AnchorMode(userID string) {
	a.logger.Info("anchor mode response", "user_id", userID)
}

// BreakerTrip logs a circuit breaker opening.
func (a *Audit) BreakerTrip(kind, key string) {
	a.logger.Warn("circuit breaker opened", "kind", kind, "key", key)
}

// WebhookRejected logs a fatal webhook verification failure.
func (a *Audit) WebhookRejected(deliveryID string, err error) {
	a.logger.Warn("webhook rejected", "delivery_id", deliveryID, "error", err)
}

// NudgeDelivered logs a fired proactive nudge.
func (a *Audit) NudgeDelivered(userID, taskID string) {
	a.logger.Info("nudge delivered", "user_id", userID, "task_id", taskID)
}
