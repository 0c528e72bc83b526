package safety

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/heike/internal/clock"
	"github.com/harunnryd/heike/internal/config"
)

func TestEvaluate_NoMatchProceeds(t *testing.T) {
	m := New(config.SafetyConfig{BlockedPatterns: []string{"self-harm"}}, clock.New())
	out := m.Evaluate("u1", "what's the weather today", nil)
	assert.False(t, out.Override)
}

func TestEvaluate_MatchOverridesWithHardCodedSource(t *testing.T) {
	m := New(config.SafetyConfig{
		BlockedPatterns: []string{"crisis-keyword"},
		OverridePhrases: []string{"Support is available."},
	}, clock.New())

	out := m.Evaluate("u2", "I need to talk about crisis-keyword right now", nil)
	require.True(t, out.Override)
	assert.Equal(t, SourceHardCoded, out.Response.Source)
	assert.Equal(t, 1.0, out.Response.Confidence)
	assert.Equal(t, "Support is available.", out.Response.Content)
}

func TestEvaluate_IsCaseInsensitive(t *testing.T) {
	m := New(config.SafetyConfig{BlockedPatterns: []string{"crisis"}}, clock.New())
	out := m.Evaluate("u1", "CRISIS mode activated", nil)
	assert.True(t, out.Override)
}

func TestEvaluate_RegexPattern(t *testing.T) {
	m := New(config.SafetyConfig{BlockedPatterns: []string{`\bhurt (myself|others)\b`}}, clock.New())
	assert.True(t, m.Evaluate("u1", "I want to hurt myself", nil).Override)
	assert.False(t, m.Evaluate("u1", "this hurts a little", nil).Override)
}

func TestEvaluate_NeverSuppressedByDailyCap(t *testing.T) {
	m := New(config.SafetyConfig{BlockedPatterns: []string{"crisis"}, DailyOverrideCap: 1}, clock.New())

	for i := 0; i < 5; i++ {
		out := m.Evaluate("u1", "crisis", nil)
		assert.True(t, out.Override, "safety override must never be suppressed by the daily cap")
	}
	assert.True(t, m.ExceededDailyCap("u1"))
}

func TestOverrideCount_ResetsDaily(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	m := New(config.SafetyConfig{BlockedPatterns: []string{"crisis"}}, fc)

	m.Evaluate("u1", "crisis", nil)
	m.Evaluate("u1", "crisis", nil)
	assert.Equal(t, 2, m.OverrideCount("u1"))

	fc.Advance(25 * time.Hour)
	assert.Equal(t, 0, m.OverrideCount("u1"))
}
