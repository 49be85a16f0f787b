// Package cmd defines and implements the CLI commands for the recipe-ingest executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-ingest/internal/config"
	"github.com/JakeFAU/recipe-ingest/internal/logging"
	"github.com/JakeFAU/recipe-ingest/internal/server"
)

// runtimeKey is the context key under which the loaded config and logger are stored.
type runtimeKey struct{}

type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

// buildApp is the application factory. Tests may replace it.
var buildApp = server.Build

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "recipe-ingest",
		Short: "Harvests recipes from syndication feeds into a recipe table.",
		Long: `recipe-ingest polls a fixed set of recipe blog feeds, renders each new article
through a headless browser, extracts its schema.org Recipe data and stores a
normalized record. It runs on a cron schedule and exposes an HTTP control surface.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs before every subcommand: config and logger are shared by all of them.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, runtimeKey{}, &runtime{cfg: cfg, logger: logger}))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML); environment overrides apply")

	cmd.AddCommand(newServeCmd(), newRunCmd(), newCheckCmd())
	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey{}).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("configuration not loaded")
	}
	return rt, nil
}

// Execute runs the CLI and exits non-zero on failure.
func Execute(ctx context.Context) {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
