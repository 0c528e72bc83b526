package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("ZAI_API_KEY", "")
	t.Setenv("HEIKE_WEBHOOK_SECRET", "")

	// We pass nil for cmd to skip flags
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("Expected default port %d, got %d", DefaultServerPort, cfg.Server.Port)
	}
	if cfg.Models.Default != DefaultModelDefault {
		t.Errorf("Expected default model %s, got %s", DefaultModelDefault, cfg.Models.Default)
	}
	if cfg.Models.Embedding != DefaultModelEmbedding {
		t.Errorf("Expected default embedding model %s, got %s", DefaultModelEmbedding, cfg.Models.Embedding)
	}
	if cfg.Safety.DailyOverrideCap != DefaultSafetyDailyOverrideCap {
		t.Errorf("Expected default daily override cap %d, got %d", DefaultSafetyDailyOverrideCap, cfg.Safety.DailyOverrideCap)
	}
	if cfg.Worker.ShutdownTimeout != DefaultWorkerShutdownTimeout {
		t.Errorf("Expected default worker shutdown timeout %s, got %s", DefaultWorkerShutdownTimeout, cfg.Worker.ShutdownTimeout)
	}
	if cfg.Nudge.TickInterval != DefaultNudgeTickInterval {
		t.Errorf("Expected default nudge tick interval %s, got %s", DefaultNudgeTickInterval, cfg.Nudge.TickInterval)
	}
	if cfg.Nudge.ShutdownTimeout != DefaultNudgeShutdownTimeout {
		t.Errorf("Expected default nudge shutdown timeout %s, got %s", DefaultNudgeShutdownTimeout, cfg.Nudge.ShutdownTimeout)
	}
	if cfg.Nudge.MaxCatchupRuns != DefaultNudgeMaxCatchupRuns {
		t.Errorf("Expected default nudge max catchup runs %d, got %d", DefaultNudgeMaxCatchupRuns, cfg.Nudge.MaxCatchupRuns)
	}
	if cfg.Daemon.PreflightTimeout != DefaultDaemonPreflightTimeout {
		t.Errorf("Expected default daemon preflight timeout %s, got %s", DefaultDaemonPreflightTimeout, cfg.Daemon.PreflightTimeout)
	}
	if cfg.Store.LockTimeout != DefaultStoreLockTimeout {
		t.Errorf("Expected default store lock timeout %s, got %s", DefaultStoreLockTimeout, cfg.Store.LockTimeout)
	}
	if cfg.Store.LockRetry != DefaultStoreLockRetry {
		t.Errorf("Expected default store lock retry %s, got %s", DefaultStoreLockRetry, cfg.Store.LockRetry)
	}
	if cfg.Store.LockMaxRetry != DefaultStoreLockMaxRetry {
		t.Errorf("Expected default store lock max retry %d, got %d", DefaultStoreLockMaxRetry, cfg.Store.LockMaxRetry)
	}
	if cfg.Store.InboxSize != DefaultStoreInboxSize {
		t.Errorf("Expected default store inbox size %d, got %d", DefaultStoreInboxSize, cfg.Store.InboxSize)
	}
	if cfg.Store.TranscriptRotateMaxBytes != DefaultStoreTranscriptRotateMaxBytes {
		t.Errorf("Expected default transcript rotate max bytes %d, got %d", DefaultStoreTranscriptRotateMaxBytes, cfg.Store.TranscriptRotateMaxBytes)
	}
	if cfg.CogLoop.StructuredRetryMax != DefaultCogLoopStructuredRetryMax {
		t.Errorf("Expected default cogloop structured retry max %d, got %d", DefaultCogLoopStructuredRetryMax, cfg.CogLoop.StructuredRetryMax)
	}
	if cfg.Prompts.Responder.System != DefaultResponderSystemPrompt {
		t.Errorf("Expected default responder system prompt, got %s", cfg.Prompts.Responder.System)
	}
	if cfg.Adapters.Telegram.UpdateTimeout != DefaultTelegramUpdateTimeout {
		t.Errorf("Expected default telegram update timeout %d, got %d", DefaultTelegramUpdateTimeout, cfg.Adapters.Telegram.UpdateTimeout)
	}
	if cfg.RateLimit.HourlyLimit != DefaultRateLimitHourlyLimit {
		t.Errorf("Expected default rate limit hourly limit %d, got %d", DefaultRateLimitHourlyLimit, cfg.RateLimit.HourlyLimit)
	}
	if cfg.RateLimit.ThrottleIncrease != DefaultRateLimitThrottleIncrease {
		t.Errorf("Expected default throttle increase %v, got %v", DefaultRateLimitThrottleIncrease, cfg.RateLimit.ThrottleIncrease)
	}
	if cfg.Breaker.Psych.FailureThreshold != DefaultBreakerPsychFailureThreshold {
		t.Errorf("Expected default psych breaker failure threshold %d, got %d", DefaultBreakerPsychFailureThreshold, cfg.Breaker.Psych.FailureThreshold)
	}
	if cfg.Breaker.Infra.FailureThreshold != DefaultBreakerInfraFailureThreshold {
		t.Errorf("Expected default infra breaker failure threshold %d, got %d", DefaultBreakerInfraFailureThreshold, cfg.Breaker.Infra.FailureThreshold)
	}
	if cfg.Webhook.Addr != DefaultWebhookAddr {
		t.Errorf("Expected default webhook addr %s, got %s", DefaultWebhookAddr, cfg.Webhook.Addr)
	}
	if cfg.Frame.LoadTriggerWeight != DefaultFrameLoadTriggerWeight {
		t.Errorf("Expected default frame load trigger weight %v, got %v", DefaultFrameLoadTriggerWeight, cfg.Frame.LoadTriggerWeight)
	}
}

func TestLoadWithConfigFlag(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := []byte(`
server:
  port: 9090
models:
  default: custom-model
`)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", configPath); err != nil {
		t.Fatalf("failed to set config flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("failed to load config with --config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Models.Default != "custom-model" {
		t.Fatalf("expected default model custom-model, got %s", cfg.Models.Default)
	}
}

func TestLoadWithMissingConfigFlagReturnsError(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", filepath.Join(t.TempDir(), "missing.yaml")); err != nil {
		t.Fatalf("failed to set config flag: %v", err)
	}

	if _, err := Load(cmd); err == nil {
		t.Fatal("expected error when --config points to missing file")
	}
}

func TestLoad_ExpandsConfiguredPaths(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	content := []byte(`
daemon:
  workspace_path: ~/.heike/workspaces
models:
  registry:
    - name: local-llama
      provider: ollama
      auth_file: ~/.heike/auth/ollama.json
`)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", configPath); err != nil {
		t.Fatalf("set config flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	wantWorkspacePath := filepath.Join(tmpDir, ".heike", "workspaces")
	if cfg.Daemon.WorkspacePath != wantWorkspacePath {
		t.Fatalf("workspace path = %q, want %q", cfg.Daemon.WorkspacePath, wantWorkspacePath)
	}

	wantAuthFile := filepath.Join(tmpDir, ".heike", "auth", "ollama.json")
	if len(cfg.Models.Registry) != 1 {
		t.Fatalf("expected 1 model registry, got %d", len(cfg.Models.Registry))
	}
	if cfg.Models.Registry[0].AuthFile != wantAuthFile {
		t.Fatalf("model auth file = %q, want %q", cfg.Models.Registry[0].AuthFile, wantAuthFile)
	}
}
