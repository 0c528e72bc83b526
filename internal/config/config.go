package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/heike/internal/pathutil"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Models    ModelsConfig    `koanf:"models"`
	Safety    SafetyConfig    `koanf:"safety"`
	Adapters  AdaptersConfig  `koanf:"adapters"`
	Webhook   WebhookConfig   `koanf:"webhook"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Breaker   BreakerConfig   `koanf:"breaker"`
	Prompts   PromptsConfig   `koanf:"prompts"`
	Store     StoreConfig     `koanf:"store"`
	CogLoop   CogLoopConfig   `koanf:"cogloop"`
	Worker    WorkerConfig    `koanf:"worker"`
	Nudge     NudgeConfig     `koanf:"nudge"`
	Frame     FrameConfig     `koanf:"frame"`
	Daemon    DaemonConfig    `koanf:"daemon"`
}

type PromptsConfig struct {
	Responder  ResponderPromptConfig  `koanf:"responder"`
	Reflection ReflectionPromptConfig `koanf:"reflection"`
}

// ResponderPromptConfig holds the responder system and instruction prompts.
// They are loaded with defaults; the LLM Router does not read them, and its
// cloud-tier request carries only the user message.
type ResponderPromptConfig struct {
	System      string `koanf:"system"`
	Instruction string `koanf:"instruction"`
}

// ReflectionPromptConfig holds the reflection system and guidelines prompts.
// They are loaded with defaults; the Cognitive Loop's fan-out has no
// summarization task and does not read them.
type ReflectionPromptConfig struct {
	System     string `koanf:"system"`
	Guidelines string `koanf:"guidelines"`
}

type StoreConfig struct {
	LockTimeout              string `koanf:"lock_timeout"`
	LockRetry                string `koanf:"lock_retry"`
	LockMaxRetry             int    `koanf:"lock_max_retry"`
	InboxSize                int    `koanf:"inbox_size"`
	TranscriptRotateMaxBytes int64  `koanf:"transcript_rotate_max_bytes"`
}

type WorkerConfig struct {
	ShutdownTimeout string `koanf:"shutdown_timeout"`
}

// CogLoopConfig tunes the Cognitive Loop orchestrator (C9).
type CogLoopConfig struct {
	Verbose             bool   `koanf:"verbose"`
	FanOutTimeout       string `koanf:"fan_out_timeout"`
	EmergencyKeywords   []string `koanf:"emergency_keywords"`
	StructuredRetryMax  int    `koanf:"structured_retry_max"`
	ProcessingTimeout   string `koanf:"processing_timeout"`
}

// NudgeConfig configures the time-triggered reinjection scheduler (C11),
// adapted from the teacher's cron-tick scheduler.
type NudgeConfig struct {
	TickInterval         string `koanf:"tick_interval"`
	ShutdownTimeout      string `koanf:"shutdown_timeout"`
	LeaseDuration        string `koanf:"lease_duration"`
	MaxCatchupRuns       int    `koanf:"max_catchup_runs"`
	InFlightPollInterval string `koanf:"in_flight_poll_interval"`
	HeartbeatWorkspaceID string `koanf:"heartbeat_workspace_id"`
}

type DaemonConfig struct {
	ShutdownTimeout        string `koanf:"shutdown_timeout"`
	HealthCheckInterval    string `koanf:"health_check_interval"`
	StartupShutdownTimeout string `koanf:"startup_shutdown_timeout"`
	PreflightTimeout       string `koanf:"preflight_timeout"`
	StaleLockTTL           string `koanf:"stale_lock_ttl"`
	WorkspacePath          string `koanf:"workspace_path"`
}

// FrameConfig tunes the Frame Builder's bounded cognitive_load scorer (C6),
// adapted from the teacher's weighted-sum trigger idiom.
type FrameConfig struct {
	Enabled            bool    `koanf:"enabled"`
	LoadTriggerWeight  float64 `koanf:"load_trigger_weight"`
	FatigueWeight      float64 `koanf:"fatigue_weight"`
	IdleWeight         float64 `koanf:"idle_weight"`
	AccessibilityFloor float64 `koanf:"accessibility_floor"`
	MemoryTraceLimit   int     `koanf:"memory_trace_limit"`
	TraceTTL           string  `koanf:"trace_ttl"`
}

// SafetyConfig configures the deterministic pattern matcher (C7), adapted
// from the teacher's rule-table/approval idiom.
type SafetyConfig struct {
	BlockedPatterns  []string `koanf:"blocked_patterns"`
	OverridePhrases  []string `koanf:"override_phrases"`
	DailyOverrideCap int      `koanf:"daily_override_cap"`
}

// RateLimitConfig configures the multi-window adaptive limiter (C4),
// grounded in original_source's rate_limiter.py.
type RateLimitConfig struct {
	HourlyLimit       int     `koanf:"hourly_limit"`
	MinuteLimit       int     `koanf:"minute_limit"`
	BurstLimit        int     `koanf:"burst_limit"`
	BurstWindow       string  `koanf:"burst_window"`
	ThrottleIncrease  float64 `koanf:"throttle_increase"`
	ThrottleMaxFactor float64 `koanf:"throttle_max_factor"`
	ThrottleDecay     float64 `koanf:"throttle_decay"`
	DecayAfter        string  `koanf:"decay_after"`
	QuotaGrace        string  `koanf:"quota_grace"`
}

// BreakerConfig configures the shared psychological + infra circuit
// breakers (C5).
type BreakerConfig struct {
	Psych PsychBreakerConfig `koanf:"psych"`
	Infra InfraBreakerConfig `koanf:"infra"`
}

type PsychBreakerConfig struct {
	FailureThreshold int    `koanf:"failure_threshold"`
	CooldownPeriod   string `koanf:"cooldown_period"`
}

type InfraBreakerConfig struct {
	MaxRequests      uint32 `koanf:"max_requests"`
	Interval         string `koanf:"interval"`
	Timeout          string `koanf:"timeout"`
	FailureThreshold uint32 `koanf:"failure_threshold"`
}

// WebhookConfig configures the inbound webhook router's HTTP transport and
// signature verification (C10).
type WebhookConfig struct {
	Addr                 string `koanf:"addr"`
	Secret               string `koanf:"secret"`
	DedupWindow          string `koanf:"dedup_window"`
	HandlerTimeout       string `koanf:"handler_timeout"`
	RateLimitPerMinute   int    `koanf:"rate_limit_per_minute"`
	InteractiveQueueSize int    `koanf:"interactive_queue_size"`
	BackgroundQueueSize  int    `koanf:"background_queue_size"`
}

type AdaptersConfig struct {
	Slack    SlackConfig    `koanf:"slack"`
	Telegram TelegramConfig `koanf:"telegram"`
}

type SlackConfig struct {
	Enabled       bool   `koanf:"enabled"`
	Port          int    `koanf:"port"`
	SigningSecret string `koanf:"signing_secret"`
	BotToken      string `koanf:"bot_token"`
}

type TelegramConfig struct {
	Enabled       bool   `koanf:"enabled"`
	BotToken      string `koanf:"bot_token"`
	UpdateTimeout int    `koanf:"update_timeout"`
}

type ServerConfig struct {
	Port            int    `koanf:"port"`
	LogLevel        string `koanf:"log_level"`
	ReadTimeout     string `koanf:"read_timeout"`
	WriteTimeout    string `koanf:"write_timeout"`
	IdleTimeout     string `koanf:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
}

type ModelsConfig struct {
	Default             string          `koanf:"default"`
	Fallback            string          `koanf:"fallback"`
	Embedding           string          `koanf:"embedding"`
	MaxFallbackAttempts int             `koanf:"max_fallback_attempts"`
	Registry            []ModelRegistry `koanf:"registry"`
}

type ModelRegistry struct {
	Name                   string `koanf:"name"`
	Provider               string `koanf:"provider"`
	BaseURL                string `koanf:"base_url"`
	APIKey                 string `koanf:"api_key"`
	AuthFile               string `koanf:"auth_file"`
	RequestTimeout         string `koanf:"request_timeout"`
	EmbeddingInputMaxChars int    `koanf:"embedding_input_max_chars"`
	MaxTokens              int    `koanf:"max_tokens"`
}

const (
	DefaultWorkspaceID               = "default"
	DefaultServerPort                = 8080
	DefaultServerLogLevel            = "info"
	DefaultServerReadTimeout         = "10s"
	DefaultServerWriteTimeout        = "10s"
	DefaultServerIdleTimeout         = "60s"
	DefaultServerShutdownTimeout     = "5s"
	DefaultModelDefault              = "gpt-4-turbo"
	DefaultModelFallback             = "claude-3-haiku"
	DefaultModelEmbedding            = "nomic-embed-text"
	DefaultModelMaxFallbackAttempts  = 2
	DefaultModelMaxTokens            = 1024
	DefaultOpenAIBaseURL             = "https://api.openai.com/v1"
	DefaultOllamaBaseURL             = "http://localhost:11434/v1"
	DefaultOllamaAPIKey              = "ollama"
	DefaultResponderSystemPrompt     = "You are Heike, a cognitive support companion. Respond briefly and concretely."
	DefaultResponderInstructionPrompt = "Keep responses short, concrete, and low-friction. Prefer a single next action over a list of options."
	DefaultReflectionSystemPrompt    = "You summarize a just-completed interaction into durable memory."
	DefaultReflectionGuidelinesPrompt = "Return one or two sentences capturing what the user needs next time. No preamble."
	DefaultStoreLockTimeout          = "30s"
	DefaultStoreLockRetry            = "100ms"
	DefaultStoreLockMaxRetry         = 300
	DefaultStoreInboxSize            = 100
	DefaultStoreTranscriptRotateMaxBytes = 10 * 1024 * 1024
	DefaultCogLoopFanOutTimeout      = "5s"
	DefaultCogLoopStructuredRetryMax = 1
	DefaultCogLoopProcessingTimeout  = "20s"
	DefaultSlackPort                 = 3000
	DefaultTelegramUpdateTimeout     = 60
	DefaultWorkerShutdownTimeout     = "30s"
	DefaultNudgeTickInterval         = "1m"
	DefaultNudgeShutdownTimeout      = "30s"
	DefaultNudgeLeaseDuration        = "5m"
	DefaultNudgeMaxCatchupRuns       = 1
	DefaultNudgeInFlightPollInterval = "100ms"
	DefaultNudgeHeartbeatWorkspaceID = DefaultWorkspaceID
	DefaultDaemonShutdownTimeout     = "30s"
	DefaultDaemonHealthCheckInterval = "30s"
	DefaultDaemonStartupShutdownTimeout = "10s"
	DefaultDaemonPreflightTimeout    = "10s"
	DefaultDaemonStaleLockTTL        = "15m"
	DefaultFrameEnabled              = true
	DefaultFrameLoadTriggerWeight    = 0.4
	DefaultFrameFatigueWeight        = 0.3
	DefaultFrameIdleWeight           = 0.3
	DefaultFrameAccessibilityFloor   = 0.2
	DefaultFrameMemoryTraceLimit     = 5
	DefaultFrameTraceTTL             = "10m"
	DefaultSafetyDailyOverrideCap    = 3
	DefaultRateLimitHourlyLimit      = 500
	DefaultRateLimitMinuteLimit      = 20
	DefaultRateLimitBurstLimit       = 10
	DefaultRateLimitBurstWindow      = "10s"
	DefaultRateLimitThrottleIncrease = 1.5
	DefaultRateLimitThrottleMaxFactor = 10.0
	DefaultRateLimitThrottleDecay    = 0.95
	DefaultRateLimitDecayAfter       = "5m"
	DefaultRateLimitQuotaGrace       = "1s"
	DefaultBreakerPsychFailureThreshold = 3
	DefaultBreakerPsychCooldownPeriod   = "2h"
	DefaultBreakerInfraMaxRequests      = 3
	DefaultBreakerInfraInterval         = "60s"
	DefaultBreakerInfraTimeout          = "30s"
	DefaultBreakerInfraFailureThreshold = 5
	DefaultWebhookAddr                  = ":8090"
	DefaultWebhookDedupWindow           = "24h"
	DefaultWebhookHandlerTimeout        = "10s"
	DefaultWebhookRateLimitPerMinute    = 120
	DefaultWebhookInteractiveQueue      = 100
	DefaultWebhookBackgroundQueue       = 1000
	DefaultWebhookAutomationUserID      = "webhook-automation"
	DefaultIngressInteractiveQueue            = 100
	DefaultIngressBackgroundQueue             = 1000
	DefaultIngressInteractiveSubmitTimeout    = "2s"
	DefaultIngressDrainTimeout                = "10s"
	DefaultIngressDrainPollInterval           = "50ms"
	DefaultGovernanceIdempotencyTTL           = "24h"
)

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"server.port":                  DefaultServerPort,
		"server.log_level":             DefaultServerLogLevel,
		"server.read_timeout":          DefaultServerReadTimeout,
		"server.write_timeout":         DefaultServerWriteTimeout,
		"server.idle_timeout":          DefaultServerIdleTimeout,
		"server.shutdown_timeout":      DefaultServerShutdownTimeout,
		"models.default":               DefaultModelDefault,
		"models.fallback":              DefaultModelFallback,
		"models.embedding":             DefaultModelEmbedding,
		"models.max_fallback_attempts": DefaultModelMaxFallbackAttempts,
		"models.registry": []ModelRegistry{
			{Name: DefaultModelDefault, Provider: "openai"},
			{Name: DefaultModelFallback, Provider: "anthropic"},
			{Name: "local-llama", Provider: "ollama", BaseURL: DefaultOllamaBaseURL},
		},
		"safety.blocked_patterns":            []string{},
		"safety.override_phrases":            []string{"i'm safe", "false alarm"},
		"safety.daily_override_cap":          DefaultSafetyDailyOverrideCap,
		"prompts.responder.system":           DefaultResponderSystemPrompt,
		"prompts.responder.instruction":      DefaultResponderInstructionPrompt,
		"prompts.reflection.system":          DefaultReflectionSystemPrompt,
		"prompts.reflection.guidelines":      DefaultReflectionGuidelinesPrompt,
		"store.lock_timeout":                 DefaultStoreLockTimeout,
		"store.lock_retry":                   DefaultStoreLockRetry,
		"store.lock_max_retry":                DefaultStoreLockMaxRetry,
		"store.inbox_size":                   DefaultStoreInboxSize,
		"store.transcript_rotate_max_bytes":  DefaultStoreTranscriptRotateMaxBytes,
		"cogloop.verbose":                    false,
		"cogloop.fan_out_timeout":            DefaultCogLoopFanOutTimeout,
		"cogloop.emergency_keywords":         []string{"emergency", "crisis", "can't cope"},
		"cogloop.structured_retry_max":       DefaultCogLoopStructuredRetryMax,
		"cogloop.processing_timeout":         DefaultCogLoopProcessingTimeout,
		"adapters.slack.port":                DefaultSlackPort,
		"adapters.telegram.update_timeout":   DefaultTelegramUpdateTimeout,
		"worker.shutdown_timeout":            DefaultWorkerShutdownTimeout,
		"nudge.tick_interval":                DefaultNudgeTickInterval,
		"nudge.shutdown_timeout":             DefaultNudgeShutdownTimeout,
		"nudge.lease_duration":               DefaultNudgeLeaseDuration,
		"nudge.max_catchup_runs":             DefaultNudgeMaxCatchupRuns,
		"nudge.in_flight_poll_interval":      DefaultNudgeInFlightPollInterval,
		"nudge.heartbeat_workspace_id":       DefaultNudgeHeartbeatWorkspaceID,
		"daemon.shutdown_timeout":            DefaultDaemonShutdownTimeout,
		"daemon.health_check_interval":       DefaultDaemonHealthCheckInterval,
		"daemon.startup_shutdown_timeout":    DefaultDaemonStartupShutdownTimeout,
		"daemon.preflight_timeout":           DefaultDaemonPreflightTimeout,
		"daemon.stale_lock_ttl":              DefaultDaemonStaleLockTTL,
		"daemon.workspace_path":              filepath.Join(os.Getenv("HOME"), ".heike", "workspaces"),
		"frame.enabled":                      DefaultFrameEnabled,
		"frame.load_trigger_weight":          DefaultFrameLoadTriggerWeight,
		"frame.fatigue_weight":               DefaultFrameFatigueWeight,
		"frame.idle_weight":                  DefaultFrameIdleWeight,
		"frame.accessibility_floor":          DefaultFrameAccessibilityFloor,
		"frame.memory_trace_limit":           DefaultFrameMemoryTraceLimit,
		"frame.trace_ttl":                    DefaultFrameTraceTTL,
		"rate_limit.hourly_limit":            DefaultRateLimitHourlyLimit,
		"rate_limit.minute_limit":            DefaultRateLimitMinuteLimit,
		"rate_limit.burst_limit":             DefaultRateLimitBurstLimit,
		"rate_limit.burst_window":            DefaultRateLimitBurstWindow,
		"rate_limit.throttle_increase":       DefaultRateLimitThrottleIncrease,
		"rate_limit.throttle_max_factor":     DefaultRateLimitThrottleMaxFactor,
		"rate_limit.throttle_decay":          DefaultRateLimitThrottleDecay,
		"rate_limit.decay_after":             DefaultRateLimitDecayAfter,
		"rate_limit.quota_grace":             DefaultRateLimitQuotaGrace,
		"breaker.psych.failure_threshold":    DefaultBreakerPsychFailureThreshold,
		"breaker.psych.cooldown_period":      DefaultBreakerPsychCooldownPeriod,
		"breaker.infra.max_requests":         DefaultBreakerInfraMaxRequests,
		"breaker.infra.interval":             DefaultBreakerInfraInterval,
		"breaker.infra.timeout":              DefaultBreakerInfraTimeout,
		"breaker.infra.failure_threshold":    DefaultBreakerInfraFailureThreshold,
		"webhook.addr":                       DefaultWebhookAddr,
		"webhook.dedup_window":               DefaultWebhookDedupWindow,
		"webhook.handler_timeout":            DefaultWebhookHandlerTimeout,
		"webhook.rate_limit_per_minute":      DefaultWebhookRateLimitPerMinute,
		"webhook.interactive_queue_size":     DefaultWebhookInteractiveQueue,
		"webhook.background_queue_size":      DefaultWebhookBackgroundQueue,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".heike", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	// Environment Variables
	k.Load(env.Provider("HEIKE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "HEIKE_")), "_", ".", -1)
	}), nil)

	// CLI Flags
	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for i, m := range cfg.Models.Registry {
		if m.Provider == "" {
			cfg.Models.Registry[i].Provider = "openai"
		}
	}

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}

	// Post-Process: Inject standard Env Vars if missing
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		for i, m := range cfg.Models.Registry {
			if m.Provider == "openai" && m.APIKey == "" {
				cfg.Models.Registry[i].APIKey = key
			}
		}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		for i, m := range cfg.Models.Registry {
			if m.Provider == "anthropic" && m.APIKey == "" {
				cfg.Models.Registry[i].APIKey = key
			}
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		for i, m := range cfg.Models.Registry {
			if m.Provider == "gemini" && m.APIKey == "" {
				cfg.Models.Registry[i].APIKey = key
			}
		}
	}
	if key := os.Getenv("ZAI_API_KEY"); key != "" {
		for i, m := range cfg.Models.Registry {
			if m.Provider == "zai" && m.APIKey == "" {
				cfg.Models.Registry[i].APIKey = key
			}
		}
	}
	if key := os.Getenv("HEIKE_WEBHOOK_SECRET"); key != "" && cfg.Webhook.Secret == "" {
		cfg.Webhook.Secret = key
	}

	return &cfg, nil
}

func normalizePathFields(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	workspacePath, err := expandConfiguredPath(cfg.Daemon.WorkspacePath)
	if err != nil {
		return err
	}
	if workspacePath != "" {
		cfg.Daemon.WorkspacePath = workspacePath
	}

	for i := range cfg.Models.Registry {
		authFile, err := expandConfiguredPath(cfg.Models.Registry[i].AuthFile)
		if err != nil {
			return err
		}
		if authFile != "" {
			cfg.Models.Registry[i].AuthFile = authFile
		}
	}

	return nil
}

func expandConfiguredPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	expanded, err := pathutil.Expand(trimmed)
	if err != nil {
		return "", err
	}
	return expanded, nil
}
