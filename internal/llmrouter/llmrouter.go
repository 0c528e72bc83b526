// Package llmrouter implements the tiered LLM Router (C8):
// pattern-match → local-cached → cloud, consulting the Safety Monitor
// first per spec.md §4.5's "router internally consults the Safety
// Monitor first" contract. Grounded in internal/model's existing
// ModelRouter facade (the teacher's cloud-tier routing/fallback stack),
// wrapped here with the two cheaper local tiers the spec requires above
// it.
package llmrouter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/heike/internal/breaker"
	"github.com/harunnryd/heike/internal/config"
	heikeErrors "github.com/harunnryd/heike/internal/errors"
	"github.com/harunnryd/heike/internal/model"
	"github.com/harunnryd/heike/internal/model/contract"
	"github.com/harunnryd/heike/internal/safety"
)

var errNoCloudProvider = errors.New("llmrouter: no cloud provider configured")

// Re-exported so callers only need to import llmrouter for the
// response shape, while the canonical definition stays in
// internal/safety (the earliest producer in the pipeline).
type LLMResponse = safety.LLMResponse

const (
	SourcePatternMatch = safety.SourcePatternMatch
	SourceLocalCached  = safety.SourceLocalCached
	SourceCloud        = safety.SourceCloud
	SourceHardCoded    = safety.SourceHardCoded
	SourceAnchorMode   = safety.SourceAnchorMode
)

// PatternRule is one entry in the O(1) pattern-match tier's table.
type PatternRule struct {
	Match    string // normalized (lowercased, trimmed) exact-match key
	Response string
}

type cacheEntry struct {
	response  LLMResponse
	expiresAt time.Time
}

// Router is the LLM Router (C8).
type Router struct {
	safety    *safety.Monitor
	cloud     model.ModelRouter
	model     string
	maxTokens int
	timeout   time.Duration
	infra     *breaker.Infra

	patterns map[string]string // normalized input -> canned content

	cacheMu  sync.Mutex
	cache    map[string]cacheEntry
	cacheTTL time.Duration
}

// New constructs a Router. callTimeout and cacheTTL are already-parsed
// durations; defaultModel names the cloud-tier model for Route calls.
// maxTokens caps the cloud tier's response length; <= 0 falls back to
// config.DefaultModelMaxTokens, the same default the Anthropic provider
// used to hardcode directly rather than accept from its caller.
func New(sm *safety.Monitor, cloud model.ModelRouter, defaultModel string, maxTokens int, callTimeout, cacheTTL time.Duration, patterns []PatternRule) *Router {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if maxTokens <= 0 {
		maxTokens = config.DefaultModelMaxTokens
	}
	r := &Router{
		safety:    sm,
		cloud:     cloud,
		model:     defaultModel,
		maxTokens: maxTokens,
		timeout:   callTimeout,
		patterns:  make(map[string]string, len(patterns)),
		cache:     make(map[string]cacheEntry),
		cacheTTL:  cacheTTL,
	}
	for _, p := range patterns {
		r.patterns[normalize(p.Match)] = p.Response
	}
	return r
}

// SetInfraBreaker wires the Infra Circuit Breaker (C5b) around the
// cloud tier; nil disables the guard (every call goes straight to
// callCloud).
func (r *Router) SetInfraBreaker(in *breaker.Infra) {
	r.infra = in
}

func normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

func promptKey(s string) string {
	sum := sha256.Sum256([]byte(normalize(s)))
	return hex.EncodeToString(sum[:])
}

// Process selects among tiers in order and returns an LLMResponse. The
// returned error is always nil: a cloud-tier failure (including a missing
// cloud provider or an open infra breaker) is answered with a
// lowered-confidence fallback response instead.
func (r *Router) Process(ctx context.Context, userID, userInput string, frame any, nudgeTier string) (LLMResponse, error) {
	start := time.Now()

	if out := r.safety.Evaluate(userID, userInput, frame); out.Override {
		return out.Response, nil
	}

	if content, ok := r.patterns[normalize(userInput)]; ok {
		return LLMResponse{
			Content:    content,
			Source:     SourcePatternMatch,
			Confidence: 0.95,
			Model:      "pattern_table",
			LatencyMS:  time.Since(start).Milliseconds(),
		}, nil
	}

	key := promptKey(userInput)
	if resp, ok := r.cachedHit(key); ok {
		resp.Source = SourceLocalCached
		resp.LatencyMS = time.Since(start).Milliseconds()
		return resp, nil
	}

	resp, err := r.callCloud(ctx, userInput, nudgeTier)
	if err != nil {
		return r.fallback(start), nil
	}
	resp.LatencyMS = time.Since(start).Milliseconds()
	r.storeCache(key, resp)
	return resp, nil
}

func (r *Router) cachedHit(key string) (LLMResponse, bool) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	e, ok := r.cache[key]
	if !ok || time.Now().After(e.expiresAt) {
		return LLMResponse{}, false
	}
	return e.response, true
}

func (r *Router) storeCache(key string, resp LLMResponse) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	r.cache[key] = cacheEntry{response: resp, expiresAt: time.Now().Add(r.cacheTTL)}
}

func (r *Router) callCloud(ctx context.Context, userInput, nudgeTier string) (LLMResponse, error) {
	if r.cloud == nil {
		return LLMResponse{}, errNoCloudProvider
	}

	var token breaker.Token
	if r.infra != nil {
		decision, tok := r.infra.Check(ctx, "llm_cloud")
		if !decision.Allowed {
			return LLMResponse{}, heikeErrors.CircuitOpen("llm cloud tier unavailable")
		}
		token = tok
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req := contract.CompletionRequest{
		Model: r.model,
		Messages: []contract.Message{
			{Role: "user", Content: userInput},
		},
		MaxTokens: r.maxTokens,
	}
	_ = nudgeTier // carried for future tier-aware prompt shaping

	start := time.Now()
	out, err := r.cloud.Route(cctx, r.model, req)
	if err != nil {
		if token != nil {
			token.Record(false)
		}
		return LLMResponse{}, err
	}
	if token != nil {
		token.Record(true)
	}
	return LLMResponse{
		Content:    out.Content,
		Source:     SourceCloud,
		Confidence: 0.85,
		Model:      r.model,
		LatencyMS:  time.Since(start).Milliseconds(),
	}, nil
}

// fallback produces the last-resort response spec.md §4.3 requires when
// the cloud tier fails outright and no cache entry can serve the
// request: a canned, lowered-confidence message tagged as local_cached
// so downstream consumers don't mistake it for a genuine cloud answer.
func (r *Router) fallback(start time.Time) LLMResponse {
	return LLMResponse{
		Content:    "I can't help right now, please try again shortly.",
		Source:     SourceLocalCached,
		Confidence: 0.2,
		Model:      "fallback",
		LatencyMS:  time.Since(start).Milliseconds(),
	}
}
