package config

import (
	"time"

	"proxycast-hq/flowscope/pkg/monitor"
	"proxycast-hq/flowscope/pkg/telemetry/logging"
	"proxycast-hq/flowscope/pkg/telemetry/metrics"
)

// Default returns a configuration populated entirely with defaults.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in default values for any unset configuration fields.
// Explicitly configured values are never overwritten.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyMonitorDefaults(&cfg.Monitor)
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = "127.0.0.1:8686"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 120 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.MaxHeaderBytes == 0 {
		cfg.MaxHeaderBytes = 1 << 20
	}

	if cfg.CORS.AllowedOrigins == nil {
		cfg.CORS.Enabled = true
		cfg.CORS.AllowedOrigins = []string{"*"}
	}
	if cfg.CORS.AllowedMethods == nil {
		cfg.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if cfg.CORS.AllowedHeaders == nil {
		cfg.CORS.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	if cfg.CORS.MaxAge == 0 {
		cfg.CORS.MaxAge = 3600
	}
}

func applyMonitorDefaults(cfg *monitor.Config) {
	def := monitor.DefaultConfig()
	if cfg.MaxFlows == 0 {
		cfg.MaxFlows = def.MaxFlows
		// A zero-valued monitor section means the operator wrote nothing;
		// take the full default block.
		cfg.Enabled = def.Enabled
		cfg.EvictStreaming = def.EvictStreaming
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.RateWindow == 0 {
		cfg.RateWindow = def.RateWindow
	}
	if cfg.Thresholds.LatencyThresholdMs == 0 && cfg.Thresholds.TokenThreshold == 0 {
		cfg.Thresholds = def.Thresholds
	}
}

func applyLoggingDefaults(cfg *logging.Config) {
	def := logging.DefaultConfig()
	if cfg.Level == "" {
		cfg.Level = def.Level
	}
	if cfg.Format == "" {
		cfg.Format = def.Format
	}
}

func applyMetricsDefaults(cfg *metrics.Config) {
	def := metrics.DefaultConfig()
	// YAML cannot distinguish enabled: false from an absent field; the
	// enabled default applies only to a fully zero section.
	if !cfg.Enabled && cfg.Namespace == "" && cfg.Subsystem == "" && cfg.DurationBuckets == nil {
		cfg.Enabled = def.Enabled
	}
	if cfg.Namespace == "" {
		cfg.Namespace = def.Namespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = def.Subsystem
	}
	if cfg.DurationBuckets == nil {
		cfg.DurationBuckets = def.DurationBuckets
	}
}
