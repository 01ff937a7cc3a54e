package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format represents the log output format.
type Format string

const (
	// FormatJSON outputs logs as JSON, one object per line.
	FormatJSON Format = "json"
	// FormatText outputs logs as key=value text.
	FormatText Format = "text"
)

// Config contains configuration for the logger.
type Config struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	// Default: "info".
	Level string `json:"level" yaml:"level"`

	// Format is the output format ("json", "text"). Default: "json".
	Format string `json:"format" yaml:"format"`

	// AddSource includes file and line number in log records.
	AddSource bool `json:"add_source" yaml:"add_source"`

	// Writer is the output destination. Defaults to os.Stdout.
	Writer io.Writer `json:"-" yaml:"-"`
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
	}
}

// New creates a structured logger from the configuration.
func New(cfg *Config) (*slog.Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch Format(strings.ToLower(cfg.Format)) {
	case FormatText:
		handler = slog.NewTextHandler(writer, opts)
	case FormatJSON, "":
		handler = slog.NewJSONHandler(writer, opts)
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	return slog.New(handler), nil
}

// Setup creates the logger and installs it as slog's default.
func Setup(cfg *Config) (*slog.Logger, error) {
	logger, err := New(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level %q", name)
}
