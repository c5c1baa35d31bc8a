package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tgpoll/pkg/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "tgpoll",
	Short:         "Long-polling Telegram Bot API client",
	Long:          "Receives Telegram bot updates with getUpdates long polling and prints, watches, or answers them.",
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: $TGPOLL_CONFIG, ./config.json, ./config/config.json, ./config.yaml)")
}
