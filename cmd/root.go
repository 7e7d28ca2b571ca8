// Package cmd wires the opschat command-line interface.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/opschat/opschat/internal/log"
)

var (
	flagVerbose bool
	flagJSONLog bool
)

var rootCmd = &cobra.Command{
	Use:   "opschat",
	Short: "opschat - operations chat assistant",
	Long: `opschat routes operator messages to the right backend: live monitoring
data, a local language model, or a built-in troubleshooting knowledge base.
Responses are cached in Redis and every reply carries its provenance.

Run 'opschat serve' to start the HTTP API, or 'opschat ask' for a
one-shot question from the terminal.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLog, "json-log", false, "emit logs as JSON")
}

// newLogger builds the process logger from the persistent flags.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: flagJSONLog})
}
