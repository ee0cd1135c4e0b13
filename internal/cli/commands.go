package cli

import (
	"os"

	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/spf13/cobra"
)

// Command-specific flags
var (
	watchPlainFlag     bool
	serveAddrFlag      string
	snapshotOutputFlag string
	snapshotViewsFlag  string
	snapshotTimeout    string
	logsLinesFlag      int
)

// watchCmd runs the terminal dashboard
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live terminal dashboard",
	Long: `Run every view on its schedule and show the results as a live dashboard.

The GPU, agent, and system views refresh independently. Select an agent
and press enter to follow its logs. When stdout is not a terminal the
dashboard falls back to printing each snapshot as it is published.

Examples:
  fleetdash watch
  fleetdash watch --plain | tee fleet.log`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchCommand(cmd.Context(), watchPlainFlag)
	},
}

// serveCmd exposes snapshots over HTTP
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve snapshots as JSON",
	Long: `Run every view on its schedule and serve the latest snapshots.

Endpoints:
  GET  /api/views                       view names
  GET  /api/views/{view}                latest snapshot
  POST /api/views/{view}/refresh        trigger a cycle now
  GET  /api/history/{view}/{entity}/{signal}   sparkline window
  GET  /api/stream                      snapshots over a websocket
  GET  /healthz, /metrics

Examples:
  fleetdash serve
  fleetdash serve --addr 127.0.0.1:9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCommand(cmd.Context(), serveAddrFlag)
	},
}

// snapshotCmd runs one cycle of each view and prints the result
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Fetch once and print",
	Long: `Run a single refresh of every view and print the snapshots.

A view whose queries partly failed still prints, with its failures listed.

Examples:
  fleetdash snapshot
  fleetdash snapshot -o json --views gpus
  fleetdash snapshot -o yaml --timeout 20s`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return snapshotCommand(cmd.Context(), cmd.OutOrStdout(), snapshotOptions{
			Output:  snapshotOutputFlag,
			Views:   snapshotViewsFlag,
			Timeout: snapshotTimeout,
		})
	},
}

// logsCmd follows one agent's log stream
var logsCmd = &cobra.Command{
	Use:   "logs [agent-id]",
	Short: "Follow an agent's logs",
	Long: `Stream log lines of a single agent until interrupted.

Without an agent id, pick one from the current agent list.

Examples:
  fleetdash logs
  fleetdash logs 7f3c2a
  fleetdash logs 7f3c2a --lines 0`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID := ""
		if len(args) == 1 {
			agentID = args[0]
		}
		return logsCommand(cmd.Context(), cmd.OutOrStdout(), agentID, logsLinesFlag)
	},
}

// configCmd groups config helpers
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

// configShowCmd prints the effective config
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration fleetdash would run with, after defaults and
FLEETDASH_* environment overrides are applied.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowCommand(cmd.OutOrStdout())
	},
}

// completionCmd generates shell completion scripts
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion scripts for fleetdash.

Examples:
  # Bash
  fleetdash completion bash > /etc/bash_completion.d/fleetdash

  # Zsh
  fleetdash completion zsh > "${fpath[1]}/_fleetdash"

  # Fish
  fleetdash completion fish > ~/.config/fish/completions/fleetdash.fish`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletion(os.Stdout)
		default:
			return errors.New(errors.ErrConfig,
				"Unknown shell: "+args[0],
				"Supported shells: bash, zsh, fish, powershell")
		}
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchPlainFlag, "plain", false, "print snapshots instead of the interactive dashboard")

	serveCmd.Flags().StringVar(&serveAddrFlag, "addr", "", "listen address (overrides serve.addr)")

	snapshotCmd.Flags().StringVarP(&snapshotOutputFlag, "output", "o", OutputTable, "output format: table, json, or yaml")
	snapshotCmd.Flags().StringVar(&snapshotViewsFlag, "views", "", "comma-separated views to print (default all)")
	snapshotCmd.Flags().StringVar(&snapshotTimeout, "timeout", "", "overall deadline for the refresh (e.g., 20s)")

	logsCmd.Flags().IntVarP(&logsLinesFlag, "lines", "n", -1, "buffered lines to print first (-1 for all, 0 for none)")

	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(completionCmd)
}
