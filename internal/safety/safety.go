// Package safety implements the Safety Monitor (C7): a deterministic,
// LLM-free pattern matcher invoked before every LLM Router call. On a
// match it produces a hard-coded LLMResponse the caller must use
// verbatim, bypassing the LLM entirely. The rule table is a reshaped
// allow-list engine: instead of approving tool calls, it matches
// against user input patterns.
package safety

import (
	"regexp"
	"strings"
	"sync"

	"github.com/harunnryd/heike/internal/clock"
	"github.com/harunnryd/heike/internal/config"
)

// LLMResponse is the shared response shape produced by the Safety
// Monitor, the LLM Router's tiers, and the Cognitive Loop's anchor-mode
// fallback. It lives here because the Safety Monitor is the earliest
// producer in the pipeline and every downstream component already
// depends on this package to consult it first.
type LLMResponse struct {
	Content    string
	Source     string
	Confidence float64
	Model      string
	LatencyMS  int64
}

// Source tags, per spec.md §4.2.
const (
	SourcePatternMatch = "pattern_match"
	SourceLocalCached  = "local_cached"
	SourceCloud        = "cloud"
	SourceHardCoded    = "hard_coded"
	SourceAnchorMode   = "anchor_mode"
)

// Outcome is the result of Evaluate.
type Outcome struct {
	Override bool
	Response LLMResponse
	Pattern  string
}

type rule struct {
	pattern  string
	re       *regexp.Regexp
	response string
}

// Monitor is the Safety Monitor. It is strictly stateless over the
// input it evaluates — Evaluate makes no remote calls and consults no
// external state beyond the optional frame passed in — but tracks a
// per-user, per-day override count purely for observability (the
// DailyOverrideCap never suppresses a true match: safety always wins).
type Monitor struct {
	rules           []rule
	defaultResponse string
	cap             int
	clock           clock.Clock

	mu        sync.Mutex
	dayKey    map[string]string
	dayCounts map[string]int
}

// New compiles cfg.BlockedPatterns into Monitor rules. Each pattern may
// be a plain substring (case-insensitive) or, if it compiles as a valid
// regexp containing a regex metacharacter, a regular expression;
// invalid regexes fall back to literal substring matching.
func New(cfg config.SafetyConfig, clk clock.Clock) *Monitor {
	m := &Monitor{
		cap:       cfg.DailyOverrideCap,
		clock:     clk,
		dayKey:    make(map[string]string),
		dayCounts: make(map[string]int),
	}
	for _, p := range cfg.BlockedPatterns {
		r := rule{pattern: p}
		if looksLikeRegex(p) {
			if re, err := regexp.Compile("(?i)" + p); err == nil {
				r.re = re
			}
		}
		m.rules = append(m.rules, r)
	}
	if len(cfg.OverridePhrases) > 0 {
		m.defaultResponse = cfg.OverridePhrases[0]
	} else {
		m.defaultResponse = "I'm not able to help with that, but support is available if you need it."
	}
	return m
}

func looksLikeRegex(p string) bool {
	return strings.ContainsAny(p, `.*+?[](){}|^$\`)
}

// Evaluate inspects userInput and returns an Override with a
// hard-coded LLMResponse when a blocked pattern matches, or Proceed
// (Outcome{Override: false}) otherwise. The frame parameter exists for
// context-dependent matching (the contract allows it) but the current
// pattern set is input-only; it is accepted and ignored rather than
// removed so callers don't need a separate signature once a
// frame-aware rule is added.
func (m *Monitor) Evaluate(userID, userInput string, _ any) Outcome {
	for _, r := range m.rules {
		if matches(r, userInput) {
			m.recordOverride(userID)
			return Outcome{
				Override: true,
				Pattern:  r.pattern,
				Response: LLMResponse{
					Content:    m.defaultResponse,
					Source:     SourceHardCoded,
					Confidence: 1.0,
					Model:      "safety_monitor",
				},
			}
		}
	}
	return Outcome{Override: false}
}

func matches(r rule, input string) bool {
	if r.re != nil {
		return r.re.MatchString(input)
	}
	return strings.Contains(strings.ToLower(input), strings.ToLower(r.pattern))
}

func (m *Monitor) recordOverride(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	today := m.clock.Now().Format("2006-01-02")
	if m.dayKey[userID] != today {
		m.dayKey[userID] = today
		m.dayCounts[userID] = 0
	}
	m.dayCounts[userID]++
}

// OverrideCount reports how many times userID has triggered a safety
// override so far today, for telemetry; it never affects Evaluate.
func (m *Monitor) OverrideCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	today := m.clock.Now().Format("2006-01-02")
	if m.dayKey[userID] != today {
		return 0
	}
	return m.dayCounts[userID]
}

// ExceededDailyCap reports whether userID's override count today has
// crossed the configured cap, for dashboards/alerts; Evaluate ignores it.
func (m *Monitor) ExceededDailyCap(userID string) bool {
	if m.cap <= 0 {
		return false
	}
	return m.OverrideCount(userID) >= m.cap
}
