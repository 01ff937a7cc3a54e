package config

import (
	"time"

	"proxycast-hq/flowscope/pkg/monitor"
	"proxycast-hq/flowscope/pkg/telemetry/logging"
	"proxycast-hq/flowscope/pkg/telemetry/metrics"
)

// Config is the root configuration structure for Flowscope. It contains the
// console server, flow monitor, and telemetry sections.
type Config struct {
	// Server contains HTTP console server configuration including listen
	// address, timeouts, and CORS settings.
	Server ServerConfig `yaml:"server"`

	// Monitor contains the flow monitoring engine configuration: store
	// capacity, eviction policy, thresholds, archiving, and retention.
	Monitor monitor.Config `yaml:"monitor"`

	// Logging contains structured logging configuration.
	Logging logging.Config `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics metrics.Config `yaml:"metrics"`
}

// ServerConfig contains configuration for the HTTP console server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8686", "0.0.0.0:8686").
	// Default: "127.0.0.1:8686"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero or negative value means no timeout.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Zero disables it; the event stream endpoint requires that,
	// so the default leaves it off.
	// Default: 0 (disabled)
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled. If zero, ReadTimeout is used.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown
	// before in-flight requests are dropped.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration for the
	// console UI.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are emitted.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins for CORS requests.
	// Use ["*"] to allow all origins.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods.
	// Default: ["GET", "POST", "PUT", "DELETE", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed HTTP headers.
	// Default: ["Authorization", "Content-Type", "X-Request-ID"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the maximum age in seconds for preflight request caching.
	// Default: 3600
	MaxAge int `yaml:"max_age"`
}
