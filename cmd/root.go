// Package cmd defines the CLI commands for the leadscout executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ReeceHarding/new-scraper-sub001/internal/app"
)

var cfgFile string

type appKeyType struct{}

var appKey appKeyType

// newApp is a variable so tests can inject a prebuilt application.
var newApp = func(ctx context.Context) (*app.App, error) {
	return app.New(ctx, cfgFile)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leadscout",
		Short: "Discovers and qualifies business leads from the open web.",
		Long: `leadscout turns a plain-language business goal into qualified leads.
It generates targeted search queries, crawls the resulting websites with a
polite headless-browser fleet, and produces structured lead profiles with
contact details and outreach drafts.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			application, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, application))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if application, ok := cmd.Context().Value(appKey).(*app.App); ok && application != nil {
				application.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is env-only configuration)")

	cmd.AddCommand(newDiscoverCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	application, ok := ctx.Value(appKey).(*app.App)
	if !ok || application == nil {
		return nil, errors.New("application services not initialized")
	}
	return application, nil
}

// Execute is the main entry point.
func Execute() error {
	return newRootCmd().Execute()
}
