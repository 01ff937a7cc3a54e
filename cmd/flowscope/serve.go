package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"proxycast-hq/flowscope/pkg/config"
	"proxycast-hq/flowscope/pkg/monitor"
	"proxycast-hq/flowscope/pkg/server"
	"proxycast-hq/flowscope/pkg/telemetry/logging"
	"proxycast-hq/flowscope/pkg/telemetry/metrics"
)

var serveFlags struct {
	listenAddress string
	logLevel      string
	watch         bool
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the flow monitor console server",
	Long: `Start the flow monitor and serve its console API.

The server listens on the configured address and exposes the query,
statistics, export, and annotation endpoints, a server-sent event stream,
and the health and metrics endpoints.

Examples:
  # Start with default config
  flowscope serve

  # Start with custom config
  flowscope serve --config /etc/flowscope/flowscope.yaml

  # Override listen address
  flowscope serve --listen 0.0.0.0:8686

  # Reload thresholds and rate window on config file changes
  flowscope serve --watch

  # Validate config without starting
  flowscope serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&serveFlags.watch, "watch", false, "reload runtime settings on config file changes")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.logLevel != "" {
		cfg.Logging.Level = serveFlags.logLevel
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	if _, err := logging.Setup(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	if serveFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Metrics, nil)
	}

	mon, err := monitor.New(&cfg.Monitor, collector)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}
	defer mon.Close()

	ctx := context.Background()
	if err := mon.Start(ctx); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	if serveFlags.watch {
		watcher, err := config.NewWatcher(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		defer watcher.Stop()

		go func() {
			err := watcher.Watch(ctx, func(updated *config.Config) {
				mon.SetEnabled(updated.Monitor.Enabled)
				mon.SetThresholdConfig(updated.Monitor.Thresholds)
				if err := mon.SetRateWindow(updated.Monitor.RateWindow); err != nil {
					slog.Warn("ignoring reloaded rate window", "error", err)
				}
			})
			if err != nil {
				slog.Error("config watcher exited", "error", err)
			}
		}()
	}

	srv := server.New(&cfg.Server, mon, collector)
	return srv.Start(ctx)
}

// loadConfig reads the configured file, falling back to defaults when the
// default config path does not exist.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithEnv(cfgFile)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && !rootCmd.PersistentFlags().Changed("config") {
		return config.Default(), nil
	}
	return nil, fmt.Errorf("failed to load config: %w", err)
}
