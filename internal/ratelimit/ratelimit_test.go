package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/heike/internal/clock"
	"github.com/harunnryd/heike/internal/config"
)

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		HourlyLimit:       500,
		MinuteLimit:       5,
		BurstLimit:        2,
		BurstWindow:       "10s",
		ThrottleIncrease:  1.5,
		ThrottleMaxFactor: 10.0,
		ThrottleDecay:     0.95,
		DecayAfter:        "5m",
	}
}

func TestAdmit_WithinCapacity(t *testing.T) {
	fc := clock.NewFake(time.Now())
	l := New(fc, testConfig(), 10*time.Second, 5*time.Minute, time.Second)

	d := l.Admit("user-1")
	assert.True(t, d.Admitted)
	l.Record("user-1")

	d = l.Admit("user-1")
	assert.True(t, d.Admitted)
}

func TestAdmit_BurstExhaustedDeniesWithRetryAfter(t *testing.T) {
	fc := clock.NewFake(time.Now())
	l := New(fc, testConfig(), 10*time.Second, 5*time.Minute, time.Second)

	for i := 0; i < 2; i++ {
		d := l.Admit("user-1")
		require.True(t, d.Admitted)
		l.Record("user-1")
	}

	d := l.Admit("user-1")
	assert.False(t, d.Admitted)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, 10*time.Second)
}

func TestAdmit_SlotFreesAfterWindowSlides(t *testing.T) {
	fc := clock.NewFake(time.Now())
	l := New(fc, testConfig(), 10*time.Second, 5*time.Minute, time.Second)

	for i := 0; i < 2; i++ {
		require.True(t, l.Admit("user-1").Admitted)
		l.Record("user-1")
	}
	require.False(t, l.Admit("user-1").Admitted)

	fc.Advance(11 * time.Second)
	assert.True(t, l.Admit("user-1").Admitted)
}

func TestOnRateLimitFailure_IncreasesFactorUpToCap(t *testing.T) {
	fc := clock.NewFake(time.Now())
	l := New(fc, testConfig(), 10*time.Second, 5*time.Minute, time.Second)

	assert.Equal(t, 1.0, l.Factor())
	for i := 0; i < 20; i++ {
		l.OnRateLimitFailure()
	}
	assert.LessOrEqual(t, l.Factor(), 10.0)
	assert.Equal(t, 10.0, l.Factor())
}

func TestThrottleFactor_DecaysAfterQuietPeriod(t *testing.T) {
	fc := clock.NewFake(time.Now())
	l := New(fc, testConfig(), 10*time.Second, 5*time.Minute, time.Second)

	l.OnRateLimitFailure()
	factorAfterFailure := l.Factor()
	assert.Greater(t, factorAfterFailure, 1.0)

	fc.Advance(5 * time.Minute)
	decayed := l.Factor()
	assert.Less(t, decayed, factorAfterFailure)
}

func TestThrottleFactor_NeverBelowOne(t *testing.T) {
	fc := clock.NewFake(time.Now())
	l := New(fc, testConfig(), 10*time.Second, 5*time.Minute, time.Second)

	l.OnRateLimitFailure()
	for i := 0; i < 50; i++ {
		fc.Advance(5 * time.Minute)
		_ = l.Factor()
	}
	assert.Equal(t, 1.0, l.Factor())
}

func TestAdmit_UpstreamQuotaExhaustedOverridesWindows(t *testing.T) {
	now := time.Now()
	fc := clock.NewFake(now)
	l := New(fc, testConfig(), 10*time.Second, 5*time.Minute, time.Second)

	l.SetQuota(Quota{Limit: 100, Remaining: 3, ResetAt: now.Add(time.Hour)})

	d := l.Admit("user-1")
	assert.False(t, d.Admitted)
	assert.Equal(t, "upstream_quota_exhausted", d.Reason)
	assert.Equal(t, time.Hour+time.Second, d.RetryAfter)
}

func TestAdmit_UpstreamQuotaIgnoredAfterReset(t *testing.T) {
	now := time.Now()
	fc := clock.NewFake(now)
	l := New(fc, testConfig(), 10*time.Second, 5*time.Minute, time.Second)

	l.SetQuota(Quota{Limit: 100, Remaining: 1, ResetAt: now.Add(time.Second)})
	fc.Advance(2 * time.Second)

	d := l.Admit("user-1")
	assert.True(t, d.Admitted)
}

func TestWaitUntilAdmitted_ZeroMaxWaitEqualsAdmit(t *testing.T) {
	fc := clock.NewFake(time.Now())
	l := New(fc, testConfig(), 10*time.Second, 5*time.Minute, time.Second)

	for i := 0; i < 2; i++ {
		require.True(t, l.WaitUntilAdmitted("user-1", 0).Admitted)
	}
	assert.False(t, l.WaitUntilAdmitted("user-1", 0).Admitted)
}

func TestBurstWindowSharedAcrossSubjects(t *testing.T) {
	fc := clock.NewFake(time.Now())
	l := New(fc, testConfig(), 10*time.Second, 5*time.Minute, time.Second)

	for i := 0; i < 2; i++ {
		require.True(t, l.Admit("user-1").Admitted)
		l.Record("user-1")
	}
	require.False(t, l.Admit("user-1").Admitted)

	// Burst window is shared, so a different subject still collides on it.
	assert.False(t, l.Admit("user-2").Admitted)
}

func TestWindow_ZeroCapacityDeniesAll(t *testing.T) {
	w := NewWindow(time.Minute, 0)
	now := time.Now()
	assert.False(t, w.HasSlot(now, 0))
}

func TestWindow_CountNeverExceedsCapacity(t *testing.T) {
	w := NewWindow(time.Minute, 3)
	now := time.Now()
	for i := 0; i < 5; i++ {
		if w.HasSlot(now, 3) {
			w.Record(now)
		}
	}
	assert.Equal(t, 3, w.Count(now))
}
