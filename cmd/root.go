// Package cmd defines the CLI commands for the web-scraper executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JezreelBuenconsejo/web-scraper/internal/config"
	"github.com/JezreelBuenconsejo/web-scraper/internal/logging"
)

var (
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "web-scraper",
		Short: "Browser-driven content extraction service",
		Long: `web-scraper runs scrape jobs against registered sources using a
headless browser, persists normalized records, and exposes an HTTP API
for job submission and status.`,

		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// .env is optional; real deployments set environment variables.
			_ = godotenv.Load()

			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err = logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			return nil
		},

		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default uses built-in defaults plus SCRAPER_* env vars)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newEnqueueCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
