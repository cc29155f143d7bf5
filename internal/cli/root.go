// Package cli provides the command-line interface for perfsight.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/perfsight/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and logger, set up before every command runs.
	cfg       config.Config
	logger    *slog.Logger
	closeLogs = func() error { return nil }
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "perfsight",
	Short: "LLM-assisted performance test analysis",
	Long: `Perfsight turns performance-test artifacts (logs, CSV results, JMeter plans,
JSON metrics, zipped runs) into a structured Markdown analysis report.

Files are chunked and summarized by a summary model, then a single analysis
call produces the report. Run it locally with 'perfsight analyze', or start a
server with 'perfsight serve' and send work to it with 'perfsight submit'.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		// Interactive commands stay quiet on stderr unless asked otherwise;
		// the server logs at the configured level.
		if !verbose && cmd.Name() != serveCmd.Name() {
			cfg.LogLevel = slog.LevelWarn
		} else if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		logger, closeLogs = config.SetupLogger(cfg)
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := closeLogs(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
}
