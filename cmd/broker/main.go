package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qsysmcp/broker/cmd/broker/commands"
	"github.com/qsysmcp/broker/logger"
)

var rootCmd = &cobra.Command{
	Use:   "broker",
	Short: "Q-SYS MCP broker - exposes a Q-SYS core over the Model Context Protocol",
	Long: `broker bridges a Q-SYS core's QRC control API to MCP tool callers over
stdio: component/control discovery, get/set, change-group subscriptions,
and an on-disk history of observed control changes.

Available commands:
  serve   - Connect to the core and serve the MCP tool catalogue over stdio
  status  - Probe the configured core directly and report whether it is reachable
  version - Show broker version information`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		level := logger.VerbosityToLevel(verbosity)
		return logger.InitializeAtLevel(false, level)
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase log verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
