package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/harunnryd/heike/internal/adapter"
	"github.com/harunnryd/heike/internal/daemon"
	"github.com/harunnryd/heike/internal/daemon/components"
	"github.com/harunnryd/heike/internal/egress"
	"github.com/harunnryd/heike/internal/ingress"
	"github.com/harunnryd/heike/internal/trace"

	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the Heike runtime as a long-running daemon",
	Long:  `Starts Heike as a long-running service using component lifecycle orchestration: store, ingress, the Cognitive Loop, workers, the nudge scheduler, the webhook router and chat adapters.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		workspaceID := resolveWorkspaceID(cmd)
		forceClean, _ := cmd.Flags().GetBool("force-clean-locks")

		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		daemonMgr, err := daemon.NewDaemon(workspaceID, cfg)
		if err != nil {
			return fmt.Errorf("failed to create daemon manager: %w", err)
		}
		daemonMgr.SetForceCleanup(forceClean)

		traces := trace.NewMemory()

		storeComp := components.NewStoreWorkerComponent(workspaceID, cfg.Daemon.WorkspacePath, &cfg.Store)
		ingressComp := components.NewIngressComponent(storeComp, &cfg.Webhook, &cfg.RateLimit)
		telemetryComp := components.NewTelemetryComponent()
		notifier := egress.New(storeComp.GetWorker)
		cogLoopComp := components.NewCogLoopComponent(cfg, traces, telemetryComp, notifier, ingressComp)

		eventHandler := func(evtCtx context.Context, source string, eventType string, sessionID string, content string, metadata map[string]string) error {
			ing := ingressComp.GetIngress()
			if ing == nil {
				return fmt.Errorf("ingress not initialized")
			}

			msgType := ingress.TypeUserMessage
			switch eventType {
			case string(ingress.TypeCommand):
				msgType = ingress.TypeCommand
			case string(ingress.TypeCron):
				msgType = ingress.TypeCron
			case string(ingress.TypeSystemEvent):
				msgType = ingress.TypeSystemEvent
			}

			externalID := metadata["external_id"]
			delete(metadata, "external_id")

			evt := ingress.NewEventWithID(externalID, source, msgType, sessionID, content, metadata)
			return ing.Submit(evtCtx, &evt)
		}

		adapterMgr, err := adapter.NewRuntimeManager(cfg.Adapters, eventHandler, adapter.RuntimeAdapterOptions{
			IncludeCLI:        false,
			IncludeSystemNull: true,
		})
		if err != nil {
			return fmt.Errorf("failed to configure adapters: %w", err)
		}
		for _, out := range adapterMgr.OutputAdapters() {
			if err := notifier.Register(out); err != nil {
				return fmt.Errorf("failed to register egress adapter %s: %w", out.Name(), err)
			}
		}

		workersComp := components.NewWorkersComponent(cfg, ingressComp, cogLoopComp, storeComp)
		adaptersComp := components.NewAdaptersComponent(adapterMgr, telemetryComp)
		nudgeComp := components.NewNudgeComponent(cfg, cogLoopComp, telemetryComp)
		webhookComp := components.NewWebhookComponent(&cfg.Webhook, traces, cogLoopComp, telemetryComp, ingressComp)

		daemonMgr.AddComponent(storeComp)
		daemonMgr.AddComponent(telemetryComp)
		daemonMgr.AddComponent(cogLoopComp)
		daemonMgr.AddComponent(ingressComp)
		daemonMgr.AddComponent(workersComp)
		daemonMgr.AddComponent(adaptersComp)
		daemonMgr.AddComponent(nudgeComp)
		daemonMgr.AddComponent(webhookComp)

		slog.Info("Heike Daemon starting up...", "webhook_addr", cfg.Webhook.Addr, "workspace", workspaceID)
		err = daemonMgr.Start(context.Background())
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("Heike Daemon stopped gracefully", "workspace", workspaceID)
				return nil
			}
			return fmt.Errorf("daemon failed: %w", err)
		}

		slog.Info("Heike Daemon stopped gracefully", "workspace", workspaceID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().StringP("workspace", "w", "", "Target workspace ID")
	daemonCmd.Flags().Bool("force-clean-locks", false, "Force cleanup of stale lock files (default: warn-only)")
}
