// Package telemetry implements the structured-audit and metrics
// surface (C12): Prometheus counters/histograms alongside slog-based
// structured logging. Grounded in
// iruldev-golang-api-hexagonal/internal/infra/resilience/metrics.go's
// registry-scoped (not global-default) metrics struct idiom, so tests
// can register against a private prometheus.Registry instead of
// polluting the process-wide default one.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every Prometheus series the cognitive runtime emits.
type Metrics struct {
	cogLoopProcessed  *prometheus.CounterVec
	cogLoopDuration   *prometheus.HistogramVec
	cogLoopLoad       prometheus.Histogram
	breakerState      *prometheus.GaugeVec
	breakerTrips      *prometheus.CounterVec
	rateLimitDecision *prometheus.CounterVec
	rateLimitFactor   prometheus.Gauge
	webhookProcessed  *prometheus.CounterVec
	webhookDuration   prometheus.Histogram
	nudgeFired        prometheus.Counter
	nudgePending      prometheus.Gauge
	safetyOverrides   *prometheus.CounterVec
	adapterHealth     *prometheus.GaugeVec
}

// New creates and registers every series against registry. If registry
// is nil, a private registry is created (matching the pack's
// NewCircuitBreakerMetrics default), so a caller that wants process-wide
// default-registry scraping must pass prometheus.DefaultRegisterer's
// registry explicitly.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		cogLoopProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cogloop_process_total",
			Help: "Total Cognitive Loop Process calls by outcome.",
		}, []string{"outcome"}),
		cogLoopDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cogloop_process_duration_seconds",
			Help:    "Cognitive Loop Process call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		cogLoopLoad: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cogloop_cognitive_load",
			Help:    "Distribution of computed cognitive_load scores.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current breaker state (1=active) per kind/key/state label.",
		}, []string{"kind", "key", "state"}),
		breakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total breaker trips (closed->open transitions) by kind/key.",
		}, []string{"kind", "key"}),
		rateLimitDecision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Rate limiter Admit decisions by admitted/denied and reason.",
		}, []string{"admitted", "reason"}),
		rateLimitFactor: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rate_limit_throttle_factor",
			Help: "Current adaptive throttle factor applied to window capacities.",
		}),
		webhookProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_process_total",
			Help: "Total webhook Process calls by accepted/duplicate/error.",
		}, []string{"result"}),
		webhookDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "webhook_process_duration_seconds",
			Help:    "Webhook Process call latency.",
			Buckets: prometheus.DefBuckets,
		}),
		nudgeFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nudge_fired_total",
			Help: "Total nudges delivered to the Cognitive Loop.",
		}),
		nudgePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nudge_pending",
			Help: "Current number of pending (unfired) nudges.",
		}),
		safetyOverrides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safety_overrides_total",
			Help: "Total Safety Monitor overrides by matched pattern.",
		}, []string{"pattern"}),
		adapterHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "adapter_health",
			Help: "Most recent Health() result per input/output adapter (1=healthy).",
		}, []string{"adapter"}),
	}

	for _, c := range []prometheus.Collector{
		m.cogLoopProcessed, m.cogLoopDuration, m.cogLoopLoad,
		m.breakerState, m.breakerTrips,
		m.rateLimitDecision, m.rateLimitFactor,
		m.webhookProcessed, m.webhookDuration,
		m.nudgeFired, m.nudgePending,
		m.safetyOverrides, m.adapterHealth,
	} {
		_ = registry.Register(c)
	}

	return m
}

// ObserveCogLoop records one Process call's outcome, duration, and
// (when available) the resulting cognitive_load.
func (m *Metrics) ObserveCogLoop(outcome string, d time.Duration, load float64, hasLoad bool) {
	m.cogLoopProcessed.WithLabelValues(outcome).Inc()
	m.cogLoopDuration.WithLabelValues(outcome).Observe(d.Seconds())
	if hasLoad {
		m.cogLoopLoad.Observe(load)
	}
}

// SetBreakerState mirrors iruldev's SetState idiom: zero every known
// state for (kind,key) then set the active one to 1.
func (m *Metrics) SetBreakerState(kind, key, state string) {
	for _, s := range []string{"closed", "open", "half-open"} {
		m.breakerState.WithLabelValues(kind, key, s).Set(0)
	}
	m.breakerState.WithLabelValues(kind, key, state).Set(1)
}

// RecordBreakerTrip increments the trip counter for kind/key.
func (m *Metrics) RecordBreakerTrip(kind, key string) {
	m.breakerTrips.WithLabelValues(kind, key).Inc()
}

// RecordRateLimitDecision tallies one Admit call's outcome.
func (m *Metrics) RecordRateLimitDecision(admitted bool, reason string) {
	m.rateLimitDecision.WithLabelValues(boolLabel(admitted), reason).Inc()
}

// SetThrottleFactor reports the rate limiter's current adaptive factor.
func (m *Metrics) SetThrottleFactor(factor float64) {
	m.rateLimitFactor.Set(factor)
}

// ObserveWebhook records one webhook Process call.
func (m *Metrics) ObserveWebhook(result string, d time.Duration) {
	m.webhookProcessed.WithLabelValues(result).Inc()
	m.webhookDuration.Observe(d.Seconds())
}

// RecordNudgeFired increments the nudge delivery counter.
func (m *Metrics) RecordNudgeFired() {
	m.nudgeFired.Inc()
}

// SetNudgePending reports the current pending-nudge queue depth.
func (m *Metrics) SetNudgePending(n int) {
	m.nudgePending.Set(float64(n))
}

// RecordSafetyOverride tallies a Safety Monitor match by pattern.
func (m *Metrics) RecordSafetyOverride(pattern string) {
	m.safetyOverrides.WithLabelValues(pattern).Inc()
}

// RecordAdapterHealth reports the latest Health() outcome for a named
// input or output adapter.
func (m *Metrics) RecordAdapterHealth(name string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.adapterHealth.WithLabelValues(name).Set(v)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
