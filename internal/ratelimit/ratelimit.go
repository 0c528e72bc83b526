package ratelimit

import (
	"sync"
	"time"

	"github.com/harunnryd/heike/internal/clock"
	"github.com/harunnryd/heike/internal/config"
)

// Decision is the outcome of an admission check. Admitted=false always
// carries a RetryAfter, replacing the original's raised-exception
// control flow per spec.md §9.
type Decision struct {
	Admitted   bool
	RetryAfter time.Duration
	Reason     string
}

// Quota mirrors an upstream API's advertised rate-limit headers
// (e.g. X-RateLimit-Remaining/Reset). The limiter treats remaining<10
// as exhausted regardless of what the local windows say.
type Quota struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

const upstreamQuotaFloor = 10

// Limiter is the Adaptive Rate Limiter (C4): three always-present
// sliding windows (hourly/minute/burst) shared across all callers,
// lazily-created per-subject windows for finer-grained throttling, an
// externally-fed upstream quota, and a multiplicative throttle factor
// that tightens admission after repeated rate-limit failures and decays
// back to 1.0 after a quiet period. Grounded in
// original_source/src/github_automation/rate_limiter.py.
type Limiter struct {
	clock clock.Clock
	cfg   config.RateLimitConfig

	burstWindow time.Duration
	decayAfter  time.Duration

	quotaGrace time.Duration

	hourly *Window
	minute *Window
	burst  *Window

	mu       sync.Mutex
	subjects map[string]*Window

	quotaMu sync.Mutex
	quota   *Quota

	throttleMu           sync.Mutex
	throttleFactor       float64
	lastRateLimitFailure time.Time
	hasFailed            bool
}

// New builds a Limiter from configuration. burstWindow, decayAfter and
// quotaGrace must already be parsed durations (config.Load parses the
// string fields at load time). A zero-capacity hourly/minute window is
// accepted and simply denies every Admit call for that window per
// spec.md §8, rather than panicking.
func New(clk clock.Clock, cfg config.RateLimitConfig, burstWindow, decayAfter, quotaGrace time.Duration) *Limiter {
	return &Limiter{
		clock:          clk,
		cfg:            cfg,
		burstWindow:    burstWindow,
		decayAfter:     decayAfter,
		quotaGrace:     quotaGrace,
		hourly:         NewWindow(time.Hour, cfg.HourlyLimit),
		minute:         NewWindow(time.Minute, cfg.MinuteLimit),
		burst:          NewWindow(burstWindow, cfg.BurstLimit),
		subjects:       make(map[string]*Window),
		throttleFactor: 1.0,
	}
}

// subjectWindow lazily creates a per-subject window sized like the
// minute window, matching the original's per-actor throttling tier.
func (l *Limiter) subjectWindow(subject string) *Window {
	if subject == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.subjects[subject]
	if !ok {
		w = NewWindow(time.Minute, l.cfg.MinuteLimit)
		l.subjects[subject] = w
	}
	return w
}

// Factor returns the current adaptive throttle multiplier, applying
// any pending decay for time elapsed since the last rate-limit failure.
func (l *Limiter) Factor() float64 {
	l.throttleMu.Lock()
	defer l.throttleMu.Unlock()
	l.decayLocked(l.clock.Now())
	return l.throttleFactor
}

func (l *Limiter) decayLocked(now time.Time) {
	if !l.hasFailed {
		return
	}
	if now.Sub(l.lastRateLimitFailure) < l.decayAfter {
		return
	}
	decay := l.cfg.ThrottleDecay
	if decay <= 0 || decay >= 1.0 {
		decay = 0.95
	}
	l.throttleFactor *= decay
	if l.throttleFactor < 1.0 {
		l.throttleFactor = 1.0
		l.hasFailed = false
	}
	// Slide the watermark so decay keeps applying every decayAfter
	// interval rather than firing once and stalling.
	l.lastRateLimitFailure = now
}

// OnRateLimitFailure multiplicatively increases the throttle factor
// (capped at ThrottleMaxFactor), called whenever an upstream response
// itself reports 429/rate-limited so future Admit calls tighten ahead
// of the caller retrying.
func (l *Limiter) OnRateLimitFailure() {
	l.throttleMu.Lock()
	defer l.throttleMu.Unlock()

	now := l.clock.Now()
	increase := l.cfg.ThrottleIncrease
	if increase <= 1.0 {
		increase = 1.5
	}
	max := l.cfg.ThrottleMaxFactor
	if max <= 0 {
		max = 10.0
	}

	l.throttleFactor *= increase
	if l.throttleFactor > max {
		l.throttleFactor = max
	}
	l.hasFailed = true
	l.lastRateLimitFailure = now
}

// SetQuota records the latest upstream-advertised quota snapshot.
func (l *Limiter) SetQuota(q Quota) {
	l.quotaMu.Lock()
	defer l.quotaMu.Unlock()
	cp := q
	l.quota = &cp
}

func (l *Limiter) quotaDecision(now time.Time) (Decision, bool) {
	l.quotaMu.Lock()
	q := l.quota
	l.quotaMu.Unlock()

	if q == nil {
		return Decision{}, false
	}
	if now.After(q.ResetAt) {
		return Decision{}, false
	}
	if q.Remaining < upstreamQuotaFloor {
		return Decision{
			Admitted:   false,
			RetryAfter: q.ResetAt.Sub(now) + l.quotaGrace,
			Reason:     "upstream_quota_exhausted",
		}, true
	}
	return Decision{}, false
}

// Admit checks whether a request for subject may proceed right now,
// without recording it. Callers that proceed must call Record.
func (l *Limiter) Admit(subject string) Decision {
	now := l.clock.Now()

	if d, exhausted := l.quotaDecision(now); exhausted {
		return d
	}

	factor := l.Factor()

	type check struct {
		w    *Window
		name string
	}
	checks := []check{
		{l.burst, "burst"},
		{l.minute, "minute"},
		{l.hourly, "hourly"},
	}
	if sw := l.subjectWindow(subject); sw != nil {
		checks = append(checks, check{sw, "subject"})
	}

	var worstWait time.Duration
	deniedBy := ""
	for _, c := range checks {
		eff := effectiveCapacity(c.w.Capacity(), factor)
		if eff <= 0 {
			eff = 0
		}
		if !c.w.HasSlot(now, eff) {
			if wait := c.w.TimeUntilSlot(now); deniedBy == "" || wait > worstWait {
				worstWait = wait
				deniedBy = c.name
			}
		}
	}

	if deniedBy != "" {
		return Decision{Admitted: false, RetryAfter: worstWait, Reason: deniedBy + "_window_exhausted"}
	}
	return Decision{Admitted: true}
}

// Record marks a request as having been made, consuming one slot from
// every tracked window for subject. Call only after Admit returned
// Admitted=true, or when mirroring a request the limiter didn't gate
// (e.g. one admitted by an upstream collaborator).
func (l *Limiter) Record(subject string) {
	now := l.clock.Now()
	l.burst.Record(now)
	l.minute.Record(now)
	l.hourly.Record(now)
	if sw := l.subjectWindow(subject); sw != nil {
		sw.Record(now)
	}

	l.quotaMu.Lock()
	if l.quota != nil && l.quota.Remaining > 0 {
		l.quota.Remaining--
	}
	l.quotaMu.Unlock()
}

// WaitUntilAdmitted blocks (via the injected Clock's timer, so it is
// deterministic under a Fake clock in tests) until Admit would succeed
// or maxWait elapses, then performs one final Admit/Record. maxWait<=0
// is equivalent to a single immediate Admit call.
func (l *Limiter) WaitUntilAdmitted(subject string, maxWait time.Duration) Decision {
	d := l.Admit(subject)
	if d.Admitted || maxWait <= 0 {
		if d.Admitted {
			l.Record(subject)
		}
		return d
	}

	deadline := l.clock.Now().Add(maxWait)
	for {
		wait := d.RetryAfter
		if wait <= 0 {
			wait = time.Millisecond
		}
		if remaining := deadline.Sub(l.clock.Now()); wait > remaining {
			wait = remaining
		}
		if wait <= 0 {
			return d
		}

		timer := l.clock.NewTimer(wait)
		<-timer.C()
		timer.Stop()

		d = l.Admit(subject)
		if d.Admitted {
			l.Record(subject)
			return d
		}
		if !l.clock.Now().Before(deadline) {
			return d
		}
	}
}

// Snapshot reports current window occupancy for observability/metrics.
type Snapshot struct {
	HourlyCount    int
	MinuteCount    int
	BurstCount     int
	ThrottleFactor float64
}

func (l *Limiter) Snapshot() Snapshot {
	now := l.clock.Now()
	return Snapshot{
		HourlyCount:    l.hourly.Count(now),
		MinuteCount:    l.minute.Count(now),
		BurstCount:     l.burst.Count(now),
		ThrottleFactor: l.Factor(),
	}
}
