package telemetry

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveCogLoop_IncrementsCounterByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCogLoop("success", 10*time.Millisecond, 0.4, true)
	m.ObserveCogLoop("success", 5*time.Millisecond, 0.2, true)
	m.ObserveCogLoop("anchor", time.Millisecond, 0, false)

	expected := `
# HELP cogloop_process_total Total Cognitive Loop Process calls by outcome.
# TYPE cogloop_process_total counter
cogloop_process_total{outcome="anchor"} 1
cogloop_process_total{outcome="success"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "cogloop_process_total"))
}

func TestSetBreakerState_OnlyActiveStateIsOne(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetBreakerState("psych", "u1", "open")

	expected := `
# HELP circuit_breaker_state Current breaker state (1=active) per kind/key/state label.
# TYPE circuit_breaker_state gauge
circuit_breaker_state{key="u1",kind="psych",state="closed"} 0
circuit_breaker_state{key="u1",kind="psych",state="half-open"} 0
circuit_breaker_state{key="u1",kind="psych",state="open"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "circuit_breaker_state"))
}

func TestRecordRateLimitDecision_LabelsByAdmittedAndReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordRateLimitDecision(false, "burst_exhausted")
	m.RecordRateLimitDecision(true, "")

	expected := `
# HELP rate_limit_decisions_total Rate limiter Admit decisions by admitted/denied and reason.
# TYPE rate_limit_decisions_total counter
rate_limit_decisions_total{admitted="false",reason="burst_exhausted"} 1
rate_limit_decisions_total{admitted="true",reason=""} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "rate_limit_decisions_total"))
}

func TestRecordAdapterHealth_LabelsByAdapterName(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordAdapterHealth("slack", true)
	m.RecordAdapterHealth("telegram", false)

	expected := `
# HELP adapter_health Most recent Health() result per input/output adapter (1=healthy).
# TYPE adapter_health gauge
adapter_health{adapter="slack"} 1
adapter_health{adapter="telegram"} 0
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "adapter_health"))
}

func TestRegisteringTwiceDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	m1 := New(reg)
	m1.RecordNudgeFired()

	// A second Metrics bound to the same registry must not panic on
	// AlreadyRegisteredError; Register errors are intentionally
	// swallowed, matching resilience.NewCircuitBreakerMetrics's idiom.
	assert.NotPanics(t, func() { New(reg) })
}
