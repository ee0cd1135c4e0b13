package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/loopfactory/fleetdash/internal/config"
	"github.com/loopfactory/fleetdash/internal/errors"
	"github.com/loopfactory/fleetdash/internal/logger"
	"github.com/loopfactory/fleetdash/internal/ui"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

// Global flags
var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "fleetdash",
	Short: "Live dashboard for an agent and GPU fleet",
	Long: `fleetdash polls GPU telemetry, agent status, and the scheduling
pipeline, reconciles them into per-entity state, and shows the result as
a terminal dashboard or serves it as JSON.

Examples:
  fleetdash watch
  fleetdash snapshot -o yaml
  fleetdash serve --addr :8080
  fleetdash logs agent-42`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || os.Getenv("NO_COLOR") != "" {
			lipgloss.SetColorProfile(termenv.Ascii)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default .fleetdash.yaml, then ~/.config/fleetdash/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command and exits non-zero on failure. SIGINT and
// SIGTERM cancel the command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if isUnknownCommandError(err) {
			if name := extractUnknownCommand(err); name != "" {
				fmt.Fprintf(os.Stderr, "%s Unknown command %q\n\n  Run 'fleetdash --help' to see available commands\n", ui.SymbolFail, name)
				os.Exit(1)
			}
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the effective config and validates it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from cfg.Log, forcing debug when
// --verbose is set, and installs it as the default.
func newLogger(cfg logger.Config) (logger.Logger, error) {
	if verbose {
		cfg.Level = "debug"
	}
	log, err := logger.New(cfg)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid log settings",
			"Check the log section of your config")
	}
	logger.SetDefault(log)
	return log, nil
}

func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag")
}

// extractUnknownCommand pulls the command name out of cobra's
// `unknown command "foo" for "fleetdash"` message.
func extractUnknownCommand(err error) string {
	msg := err.Error()
	start := strings.Index(msg, `"`)
	if start < 0 {
		return ""
	}
	end := strings.Index(msg[start+1:], `"`)
	if end < 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}
