package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tgpoll/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", version.Product, version.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
