package llmrouter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/heike/internal/clock"
	"github.com/harunnryd/heike/internal/config"
	"github.com/harunnryd/heike/internal/model/contract"
	"github.com/harunnryd/heike/internal/safety"
)

type fakeCloud struct {
	response *contract.CompletionResponse
	err      error
	calls    int
	lastReq  contract.CompletionRequest
}

func (f *fakeCloud) Route(ctx context.Context, model string, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}
func (f *fakeCloud) RouteEmbedding(ctx context.Context, model string, text string) ([]float32, error) {
	return nil, nil
}
func (f *fakeCloud) ListModels() []string   { return []string{"test-model"} }
func (f *fakeCloud) Health(ctx context.Context) error { return nil }

func newMonitor() *safety.Monitor {
	return safety.New(config.SafetyConfig{BlockedPatterns: []string{"crisis"}}, clock.New())
}

func TestProcess_SafetyOverrideShortCircuits(t *testing.T) {
	cloud := &fakeCloud{response: &contract.CompletionResponse{Content: "should not be reached"}}
	r := New(newMonitor(), cloud, "test-model", 0, time.Second, time.Minute, nil)

	resp, err := r.Process(context.Background(), "u1", "crisis talk", nil, "")
	require.NoError(t, err)
	assert.Equal(t, SourceHardCoded, resp.Source)
	assert.Equal(t, 0, cloud.calls)
}

func TestProcess_PatternMatchHit(t *testing.T) {
	cloud := &fakeCloud{response: &contract.CompletionResponse{Content: "should not be reached"}}
	r := New(newMonitor(), cloud, "test-model", 0, time.Second, time.Minute, []PatternRule{
		{Match: "hello", Response: "hi there"},
	})

	resp, err := r.Process(context.Background(), "u1", "  Hello  ", nil, "")
	require.NoError(t, err)
	assert.Equal(t, SourcePatternMatch, resp.Source)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, 0, cloud.calls)
}

func TestNew_MaxTokensDefaultsWhenZeroOrNegative(t *testing.T) {
	cloud := &fakeCloud{response: &contract.CompletionResponse{Content: "cloud answer"}}
	r := New(newMonitor(), cloud, "test-model", -5, time.Second, time.Minute, nil)

	_, err := r.Process(context.Background(), "u1", "what's the weather", nil, "")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultModelMaxTokens, cloud.lastReq.MaxTokens)
}

func TestNew_MaxTokensOverridePropagatesToRequest(t *testing.T) {
	cloud := &fakeCloud{response: &contract.CompletionResponse{Content: "cloud answer"}}
	r := New(newMonitor(), cloud, "test-model", 256, time.Second, time.Minute, nil)

	_, err := r.Process(context.Background(), "u1", "what's the weather", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 256, cloud.lastReq.MaxTokens)
}

func TestProcess_CloudTierOnMiss(t *testing.T) {
	cloud := &fakeCloud{response: &contract.CompletionResponse{Content: "cloud answer"}}
	r := New(newMonitor(), cloud, "test-model", 0, time.Second, time.Minute, nil)

	resp, err := r.Process(context.Background(), "u1", "what's the weather", nil, "")
	require.NoError(t, err)
	assert.Equal(t, SourceCloud, resp.Source)
	assert.Equal(t, "cloud answer", resp.Content)
	assert.Equal(t, 1, cloud.calls)
}

func TestProcess_LocalCacheHitAfterCloudCall(t *testing.T) {
	cloud := &fakeCloud{response: &contract.CompletionResponse{Content: "cloud answer"}}
	r := New(newMonitor(), cloud, "test-model", 0, time.Second, time.Minute, nil)

	_, err := r.Process(context.Background(), "u1", "what's the weather", nil, "")
	require.NoError(t, err)
	require.Equal(t, 1, cloud.calls)

	resp, err := r.Process(context.Background(), "u1", "What's The Weather", nil, "")
	require.NoError(t, err)
	assert.Equal(t, SourceLocalCached, resp.Source)
	assert.Equal(t, "cloud answer", resp.Content)
	assert.Equal(t, 1, cloud.calls, "second identical prompt must be served from cache, not the cloud tier")
}

func TestProcess_CloudFailureReturnsLoweredConfidenceFallback(t *testing.T) {
	cloud := &fakeCloud{err: errors.New("upstream down")}
	r := New(newMonitor(), cloud, "test-model", 0, time.Second, time.Minute, nil)

	resp, err := r.Process(context.Background(), "u1", "what's the weather", nil, "")
	require.NoError(t, err)
	assert.Less(t, resp.Confidence, 0.5)
}

func TestProcess_NoCloudProviderConfigured(t *testing.T) {
	r := New(newMonitor(), nil, "test-model", 0, time.Second, time.Minute, nil)

	resp, err := r.Process(context.Background(), "u1", "unmatched input", nil, "")
	require.NoError(t, err)
	assert.Less(t, resp.Confidence, 0.5)
}
