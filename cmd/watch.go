package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tgpoll/pkg/bot"
	"tgpoll/pkg/botapi"
	"tgpoll/pkg/config"
	"tgpoll/pkg/ui/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show a live terminal feed of incoming updates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// The feed owns the terminal, so logs are dropped unless they go to a
		// structured sink.
		log := slog.New(slog.NewTextHandler(io.Discard, nil))
		if cfg.Logging.Format == "json" {
			if log, err = setupLogger(cfg, "cmd.watch"); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runWatch(ctx, cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	token, err := resolveToken(cfg)
	if err != nil {
		return err
	}

	store, closeStore, err := openCheckpoint(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	b, err := bot.New(ctx, token, bot.Options{APIServer: cfg.Telegram.APIServer, Logger: log})
	if err != nil {
		return err
	}

	updates := b.Updates(ctx, pollerOptions(cfg, store, log))
	defer func() { _ = updates.Close() }()

	apiServer := cfg.Telegram.APIServer
	if apiServer == "" {
		apiServer = botapi.DefaultBaseURL
	}

	return watch.Run(ctx, updates, watch.Info{Bot: b.Username, APIServer: apiServer})
}
