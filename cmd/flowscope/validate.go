package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"proxycast-hq/flowscope/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without starting the server.

Environment variable overrides (FLOWSCOPE_*) are applied before validation,
so the result reflects the configuration the server would actually run with.

Examples:
  # Validate the default config file
  flowscope validate

  # Validate a specific file
  flowscope validate --config /etc/flowscope/flowscope.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithEnv(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			fmt.Printf("✗ %s: %d problem(s)\n", cfgFile, len(verr.Errors))
			for _, fe := range verr.Errors {
				fmt.Printf("  - %s: %s\n", fe.Field, fe.Message)
			}
			return fmt.Errorf("configuration invalid")
		}
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Printf("✓ %s is valid\n", cfgFile)
	fmt.Printf("  listen address: %s\n", cfg.Server.ListenAddress)
	fmt.Printf("  max flows:      %d\n", cfg.Monitor.MaxFlows)
	fmt.Printf("  metrics:        %t\n", cfg.Metrics.Enabled)
	if cfg.Monitor.Archive != nil {
		fmt.Printf("  archive:        %s\n", cfg.Monitor.Archive.Path)
	}
	return nil
}
