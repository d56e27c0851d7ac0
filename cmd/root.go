// Package cmd defines and implements the CLI commands for the datasync
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opengouv/datasync/internal/app"
	"github.com/opengouv/datasync/internal/config"
	"github.com/opengouv/datasync/internal/parser"
	"github.com/opengouv/datasync/internal/syncer"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use. This allows
// injecting a mock app during tests.
type App interface {
	Close()
	Logger() *zap.Logger
	Syncer() *syncer.Syncer
	Processor() *parser.Processor
	Config() config.Config
}

// newApp is the application factory. It is a variable so tests can replace it
// with a mock factory.
var newApp = func(ctx context.Context) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datasync",
		Short: "Mirrors an open-data catalog into a local record store.",
		Long: `datasync crawls a paginated open-data catalog API, mirrors dataset and
resource metadata locally, and optionally downloads and parses each
dataset's file resources (CSV, JSON, Excel) into normalized row records.`,

		// Runs before the subcommand's RunE; builds and injects the
		// application services.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		// Ensures services are shut down gracefully.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is environment-only)")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newProcessCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
