package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tgpoll/pkg/bot"
	"tgpoll/pkg/config"
)

var pollMax int

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Print incoming updates as JSON lines",
	Long:  "Resolves the bot identity, then long-polls getUpdates and writes every update to stdout as one JSON object per line.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		log, err := setupLogger(cfg, "cmd.poll")
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runPoll(ctx, cfg, cmd.OutOrStdout(), pollMax, log)
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)
	pollCmd.Flags().IntVarP(&pollMax, "max", "n", 0, "stop after this many updates (0 runs until interrupted)")
}

func runPoll(ctx context.Context, cfg *config.Config, out io.Writer, max int, log *slog.Logger) error {
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
	warnUnknownUpdateKinds(cfg, log)

	updates := b.Updates(ctx, pollerOptions(cfg, store, log))
	defer func() { _ = updates.Close() }()

	encoder := json.NewEncoder(out)
	written := 0
	for update, err := range updates.All(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("poll updates: %w", err)
		}

		if err := encoder.Encode(update); err != nil {
			return fmt.Errorf("write update %d: %w", update.UpdateID, err)
		}

		written++
		if max > 0 && written >= max {
			log.Info("Update limit reached", "count", written)
			return nil
		}
	}

	return nil
}
