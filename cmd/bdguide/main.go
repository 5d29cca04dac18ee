// Package main provides the bdguide command: the HTTP API server plus local
// maintenance commands for templates, evaluations and backups.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/app"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "bdguide",
	Short:         "Web3 BD evaluation engine",
	Long:          "bdguide scores blockchain projects against configurable evaluation templates and serves the evaluation API.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var envFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file (default: ./.env when present)")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and installs the JSON logger
func loadConfig() (*config.Config, error) {
	if envFile != "" {
		config.LoadDotEnv(envFile)
	} else {
		config.LoadDotEnv()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)
	return cfg, nil
}

// openApp loads configuration and opens the component graph
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return a, nil
}
