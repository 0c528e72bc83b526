package adapter

import (
	"context"
	"strings"
	"testing"

	"github.com/harunnryd/heike/internal/config"
	"github.com/harunnryd/heike/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeManager_HealthRecordsAdapterMetrics(t *testing.T) {
	mgr, err := NewRuntimeManager(config.AdaptersConfig{}, nil, RuntimeAdapterOptions{IncludeSystemNull: true})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg)
	mgr.SetTelemetry(metrics)

	require.NoError(t, mgr.Health(context.Background()))

	expected := `
# HELP adapter_health Most recent Health() result per input/output adapter (1=healthy).
# TYPE adapter_health gauge
adapter_health{adapter="scheduler"} 1
adapter_health{adapter="system"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "adapter_health"))
}

func TestRuntimeManager_HealthWithoutTelemetryDoesNotPanic(t *testing.T) {
	mgr, err := NewRuntimeManager(config.AdaptersConfig{}, nil, RuntimeAdapterOptions{IncludeSystemNull: true})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		_ = mgr.Health(context.Background())
	})
}
