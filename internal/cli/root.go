// Package cli implements the codesentry command line interface.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nkarpov/codesentry/internal/config"
	"github.com/nkarpov/codesentry/internal/guardian"
)

var (
	flagConfig string
	flagDB     string
)

var rootCmd = &cobra.Command{
	Use:   "codesentry",
	Short: "Code protection and runtime monitoring",
	Long: "Registers protected functions and blocks, verifies their integrity\n" +
		"against content digests, traces runtime calls into a call graph, and\n" +
		"reports tampering.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config YAML (default <home>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "Path to the database (overrides config)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration for this invocation.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.DatabasePath = flagDB
	}
	return cfg, nil
}

// openGuardian loads config and opens the guardian over the configured
// database. The caller must Close it.
func openGuardian(ctx context.Context) (*guardian.Guardian, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	g, err := guardian.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	return g, cfg, nil
}
