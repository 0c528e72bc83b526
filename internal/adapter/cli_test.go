package adapter

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestCLIAdapter_SendColorsByPrefix(t *testing.T) {
	cases := []struct {
		content string
		color   string
	}{
		{"hello", "\033[32m"},
		{"Executing: plan", "\033[33m"},
		{"[CMD] ok", "\033[34m"},
		{"Plan generated: x", "\033[36m"},
		{"Error: boom", "\033[31m"},
		{"Plan: do x", "\033[35m"},
	}

	for _, tc := range cases {
		var buf bytes.Buffer
		a := &CLIAdapter{out: &buf}
		assert.NoError(t, a.Send(context.Background(), "session1", tc.content))
		assert.Contains(t, buf.String(), tc.color)
		assert.Contains(t, buf.String(), tc.content)
	}
}

func TestCLIAdapter_HealthReflectsLastSendError(t *testing.T) {
	a := &CLIAdapter{out: failingWriter{}}
	assert.NoError(t, a.Health(context.Background()))

	err := a.Send(context.Background(), "session1", "hi")
	assert.Error(t, err)
	assert.Equal(t, err, a.Health(context.Background()))
}

func TestCLIAdapter_StartAndStopTrackRunning(t *testing.T) {
	var buf bytes.Buffer
	a := &CLIAdapter{out: &buf}

	ctx, cancel := context.WithCancel(context.Background())
	assert.NoError(t, a.Start(ctx))
	assert.True(t, a.running)

	cancel()
	assert.NoError(t, a.Stop(context.Background()))
	assert.False(t, a.running)
}
