package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover [goal]",
		Short: "Runs one lead discovery pass for a business goal",
		Long: `Generates search queries for the goal, searches the web, crawls the
results, and prints the discovered leads as JSON.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runDiscoverCommand,
	}
	return cmd
}

func runDiscoverCommand(cmd *cobra.Command, args []string) error {
	application, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	goal := strings.Join(args, " ")
	report, err := application.Pipeline.Run(ctx, goal)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			application.Logger.Warn("discovery interrupted", zap.String("goal", goal))
			return nil
		}
		return fmt.Errorf("run discovery: %w", err)
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
