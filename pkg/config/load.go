package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file, applies defaults, and validates
// the result. Environment variables are not consulted; use LoadWithEnv for
// that.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadWithEnv loads configuration from a YAML file and applies environment
// variable overrides. Variables follow the naming convention
// FLOWSCOPE_SECTION_FIELD (e.g., FLOWSCOPE_SERVER_LISTEN_ADDRESS) and always
// take precedence over file values.
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("after environment overrides: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Server
	if val := os.Getenv("FLOWSCOPE_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if d, ok := envDuration("FLOWSCOPE_SERVER_READ_TIMEOUT"); ok {
		cfg.Server.ReadTimeout = d
	}
	if d, ok := envDuration("FLOWSCOPE_SERVER_WRITE_TIMEOUT"); ok {
		cfg.Server.WriteTimeout = d
	}
	if d, ok := envDuration("FLOWSCOPE_SERVER_IDLE_TIMEOUT"); ok {
		cfg.Server.IdleTimeout = d
	}
	if d, ok := envDuration("FLOWSCOPE_SERVER_SHUTDOWN_TIMEOUT"); ok {
		cfg.Server.ShutdownTimeout = d
	}

	// Monitor
	if b, ok := envBool("FLOWSCOPE_MONITOR_ENABLED"); ok {
		cfg.Monitor.Enabled = b
	}
	if i, ok := envInt("FLOWSCOPE_MONITOR_MAX_FLOWS"); ok {
		cfg.Monitor.MaxFlows = i
	}
	if b, ok := envBool("FLOWSCOPE_MONITOR_EVICT_STREAMING"); ok {
		cfg.Monitor.EvictStreaming = b
	}
	if val := os.Getenv("FLOWSCOPE_MONITOR_FLOW_DIR"); val != "" {
		cfg.Monitor.FlowDir = val
	}
	if i, ok := envInt("FLOWSCOPE_MONITOR_QUEUE_SIZE"); ok {
		cfg.Monitor.QueueSize = i
	}
	if d, ok := envDuration("FLOWSCOPE_MONITOR_RATE_WINDOW"); ok {
		cfg.Monitor.RateWindow = d
	}
	if b, ok := envBool("FLOWSCOPE_MONITOR_THRESHOLDS_ENABLED"); ok {
		cfg.Monitor.Thresholds.Enabled = b
	}
	if i, ok := envInt("FLOWSCOPE_MONITOR_LATENCY_THRESHOLD_MS"); ok {
		cfg.Monitor.Thresholds.LatencyThresholdMs = int64(i)
	}
	if i, ok := envInt("FLOWSCOPE_MONITOR_TOKEN_THRESHOLD"); ok {
		cfg.Monitor.Thresholds.TokenThreshold = i
	}
	if val := os.Getenv("FLOWSCOPE_MONITOR_ARCHIVE_PATH"); val != "" && cfg.Monitor.Archive != nil {
		cfg.Monitor.Archive.Path = val
	}

	// Logging
	if val := os.Getenv("FLOWSCOPE_LOGGING_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("FLOWSCOPE_LOGGING_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}

	// Metrics
	if b, ok := envBool("FLOWSCOPE_METRICS_ENABLED"); ok {
		cfg.Metrics.Enabled = b
	}
	if val := os.Getenv("FLOWSCOPE_METRICS_NAMESPACE"); val != "" {
		cfg.Metrics.Namespace = val
	}
}

func envDuration(name string) (time.Duration, bool) {
	val := os.Getenv(name)
	if val == "" {
		return 0, false
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, false
	}
	return d, true
}

func envInt(name string) (int, bool) {
	val := os.Getenv(name)
	if val == "" {
		return 0, false
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, false
	}
	return i, true
}

func envBool(name string) (bool, bool) {
	val := os.Getenv(name)
	if val == "" {
		return false, false
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, false
	}
	return b, true
}
