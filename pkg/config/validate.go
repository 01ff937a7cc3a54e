package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"

	"proxycast-hq/flowscope/pkg/telemetry/logging"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field
	// (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a
// configuration. All field errors are collected and reported together.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any rules fail. It returns nil if the configuration is valid.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateMonitor(cfg)...)
	errs = append(errs, validateLogging(cfg)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address %q", cfg.ListenAddress),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must not be negative",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must not be negative",
		})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must not be negative",
		})
	}

	return errs
}

func validateMonitor(cfg *Config) []FieldError {
	var errs []FieldError
	m := &cfg.Monitor

	if m.MaxFlows <= 0 {
		errs = append(errs, FieldError{
			Field:   "monitor.max_flows",
			Message: "max flows must be positive",
		})
	}
	if m.QueueSize <= 0 {
		errs = append(errs, FieldError{
			Field:   "monitor.queue_size",
			Message: "queue size must be positive",
		})
	}
	if m.RateWindow <= 0 {
		errs = append(errs, FieldError{
			Field:   "monitor.rate_window",
			Message: "rate window must be positive",
		})
	}
	if m.Thresholds.LatencyThresholdMs < 0 {
		errs = append(errs, FieldError{
			Field:   "monitor.thresholds.latency_threshold_ms",
			Message: "latency threshold must not be negative",
		})
	}
	if m.Thresholds.TokenThreshold < 0 {
		errs = append(errs, FieldError{
			Field:   "monitor.thresholds.token_threshold",
			Message: "token threshold must not be negative",
		})
	}

	if m.Archive != nil && m.Archive.Path == "" {
		errs = append(errs, FieldError{
			Field:   "monitor.archive.path",
			Message: "archive path is required when archiving is configured",
		})
	}
	if m.ArchiveTerminal && m.Archive == nil {
		errs = append(errs, FieldError{
			Field:   "monitor.archive_terminal",
			Message: "archive_terminal requires an archive section",
		})
	}

	if m.Retention != nil {
		if m.Retention.MaxAge < 0 {
			errs = append(errs, FieldError{
				Field:   "monitor.retention.max_age",
				Message: "max age must not be negative",
			})
		}
		if m.Retention.PruneSchedule != "" {
			if _, err := cron.ParseStandard(m.Retention.PruneSchedule); err != nil {
				errs = append(errs, FieldError{
					Field:   "monitor.retention.prune_schedule",
					Message: fmt.Sprintf("invalid cron expression %q", m.Retention.PruneSchedule),
				})
			}
		}
	}

	return errs
}

func validateLogging(cfg *Config) []FieldError {
	var errs []FieldError

	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, FieldError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", cfg.Logging.Level),
		})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text", "":
	default:
		errs = append(errs, FieldError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format %q (valid: json, text)", cfg.Logging.Format),
		})
	}

	return errs
}
