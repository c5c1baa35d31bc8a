package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tgpoll/pkg/bus"
	"tgpoll/pkg/channel"
	"tgpoll/pkg/channel/telegram"
	"tgpoll/pkg/config"
	"tgpoll/pkg/gateway"

	"github.com/spf13/cobra"
)

const telegramChannelName = "telegram"

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run channel gateway mode",
	Long:  "Runs the Telegram channel with health and readiness endpoints, optionally echoing text messages back.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		log, err := setupLogger(cfg, "cmd.gateway")
		if err != nil {
			return err
		}

		token, err := resolveToken(cfg)
		if err != nil {
			return err
		}
		cfg.Telegram.Token = token

		store, closeStore, err := openCheckpoint(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = closeStore() }()

		eventBus := bus.New()
		defer eventBus.Close()

		adapters, err := enabledAdapters(cfg, telegram.Options{
			Polling: pollerOptions(cfg, store, nil),
			Bus:     eventBus,
			Logger:  slog.Default(),
		})
		if err != nil {
			return fmt.Errorf("gateway configuration invalid: %w", err)
		}
		warnUnknownUpdateKinds(cfg, log)

		runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := gateway.NewService(cfg, adapters, eventBus, slog.Default())
		if err != nil {
			return fmt.Errorf("initialize gateway service: %w", err)
		}

		log.Info("Gateway started", "channels", enabledChannelNames(adapters), "echo", cfg.Gateway.Echo, "address", cfg.Gateway.Addr())
		if err := svc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("gateway runtime failed: %w", err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}

func enabledAdapters(cfg *config.Config, opts telegram.Options) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 1)

	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		adapter, err := telegram.NewAdapter(cfg.Telegram, opts)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", telegramChannelName, err)
		}
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 {
		return nil, errors.New("no channels are enabled")
	}

	return adapters, nil
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}
