package telemetry

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAudit_MethodsDoNotPanic(t *testing.T) {
	a := NewAudit(slog.New(slog.DiscardHandler))
	assert.NotPanics(t, func() {
		a.SafetyOverride("u1", "crisis")
		a.AnchorMode("u1")
		a.BreakerTrip("psych", "u1")
		a.WebhookRejected("d1", errors.New("bad signature"))
		a.NudgeDelivered("u1", "t1")
	})
}

func TestNewAudit_DefaultsToSlogDefaultWhenNil(t *testing.T) {
	a := NewAudit(nil)
	assert.NotNil(t, a)
}
