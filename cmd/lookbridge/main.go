package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/teranos/lookbridge/am"
	"github.com/teranos/lookbridge/cmd/lookbridge/commands"
	"github.com/teranos/lookbridge/logger"
)

var rootCmd = &cobra.Command{
	Use:   "lookbridge",
	Short: "lookbridge - companion bridge for the headless viewer",
	Long: `lookbridge - connects a headless viewer to its companion processes.

It keeps a WebSocket link to DLPrecise (DeepLook) and to the TotalSegmentator
AI server, reconnects when they go away, and hands the pointer tool over to
DeepLook while it measures.

Available commands:
  connect - Run the bridge until interrupted
  status  - Probe the configured companions
  send    - Send one opcode to DLPrecise
  run     - Run any extension command once connected
  launch  - Open or close DLPrecise, or its installer page
  mock    - Serve a fake companion for local testing
  config  - Manage configuration ("I am")
  version - Show version information

Examples:
  lookbridge connect -v           # Bridge with lifecycle logging
  lookbridge mock --variant tag   # Fake DLPrecise on port 44458
  lookbridge config show          # Effective configuration with sources`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")

		// Config errors surface in the command itself; logging falls back to flags
		if cfg, err := am.Load(); err == nil {
			jsonLogs = jsonLogs || cfg.Log.JSON
			if !cmd.Flags().Changed("verbose") {
				verbosity = cfg.Log.Verbosity
			}
		}

		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger.SetVerbosity(verbosity)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")

	rootCmd.AddCommand(commands.ConnectCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.SendCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.LaunchCmd)
	rootCmd.AddCommand(commands.MockCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
