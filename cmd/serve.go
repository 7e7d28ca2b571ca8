package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opschat/opschat/internal/api"
	"github.com/opschat/opschat/internal/app"
	"github.com/opschat/opschat/internal/config"
)

var flagListenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagListenAddr, "addr", "", "listen address (overrides OPSCHAT_LISTEN_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

// runServe loads configuration, wires the backends and runs the HTTP
// server until SIGINT/SIGTERM.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger()
	logger.Info("starting opschat", "version", AppVersion)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	srv := api.NewServer(a.Orchestrator, a.Orchestrator, a.Orchestrator, a.Cache, a.Model, logger)

	addr := cfg.ListenAddr
	if flagListenAddr != "" {
		addr = flagListenAddr
	}

	if err := srv.Run(ctx, addr); err != nil {
		return fmt.Errorf("running HTTP server: %w", err)
	}

	logger.Info("opschat stopped")
	return nil
}
