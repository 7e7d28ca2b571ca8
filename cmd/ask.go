package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/opschat/opschat/internal/app"
	"github.com/opschat/opschat/internal/config"
)

var flagAskSession string

var askCmd = &cobra.Command{
	Use:   "ask [message...]",
	Short: "Ask a one-shot question from the terminal",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(strings.Join(args, " "))
	},
}

func init() {
	askCmd.Flags().StringVar(&flagAskSession, "session", "", "session id to continue (default: new session)")
	rootCmd.AddCommand(askCmd)
}

// runAsk routes a single message through the orchestrator and prints the
// formatted response.
func runAsk(message string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger()

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

	sessionID := flagAskSession
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx, cancelQuery := context.WithTimeout(ctx, cfg.QueryTimeout)
	defer cancelQuery()

	fmt.Println(a.Orchestrator.HandleMessage(ctx, message, sessionID))
	fmt.Printf("\n(session: %s)\n", sessionID)
	return nil
}
