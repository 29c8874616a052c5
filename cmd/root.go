// Package cmd defines and implements the CLI commands for the cache warmer executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagecache-warmer/internal/api"
	"github.com/JakeFAU/pagecache-warmer/internal/app"
	"github.com/JakeFAU/pagecache-warmer/internal/collector"
	"github.com/JakeFAU/pagecache-warmer/internal/config"
	"github.com/JakeFAU/pagecache-warmer/internal/logging"
	"github.com/JakeFAU/pagecache-warmer/internal/orchestrator"
	"github.com/JakeFAU/pagecache-warmer/internal/schedule"
	"github.com/JakeFAU/pagecache-warmer/internal/site"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application services the commands use.
type App interface {
	Close()
	GetLogger() *zap.Logger
	GetConfig() config.Config
	GetSites() *site.Directory
	GetCollector() *collector.Collector
	GetOrchestrator() *orchestrator.Orchestrator
	GetRunner() *schedule.Runner
	NewServer() *api.Server
}

// newApp is the application factory. It's a variable so tests can swap it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newRootCmd creates and configures the root command. The returned func
// closes the application services once execution has finished, including
// when a subcommand failed.
func newRootCmd() (*cobra.Command, func()) {
	var (
		cfgFile     string
		appInstance App
	)

	cmd := &cobra.Command{
		Use:   "pagecache-warmer",
		Short: "Warms a storefront's full page cache.",
		Long: `pagecache-warmer collects the category, product, CMS and custom URLs of
each configured storefront and requests the ones that are not yet in the full
page cache, so that visitors are served cached pages.`,
		SilenceUsage: true,

		// Builds the application once the flags are parsed and injects it
		// into the subcommand's context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
				Encoding:    cfg.Logging.Encoding,
				OutputPaths: cfg.Logging.OutputPaths,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err = newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); values may be overridden with WARMER_* variables")

	cmd.AddCommand(newWarmCmd())
	cmd.AddCommand(newURLsCmd())
	cmd.AddCommand(newServeCmd())

	cleanup := func() {
		if appInstance != nil {
			appInstance.Close()
			appInstance = nil
		}
	}
	return cmd, cleanup
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	root, cleanup := newRootCmd()
	err := root.ExecuteContext(context.Background())
	cleanup()
	if err != nil {
		os.Exit(1)
	}
}
