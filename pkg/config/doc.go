// Package config loads, validates, and watches the Flowscope configuration.
//
// Configuration is read from a YAML file, filled with defaults, and checked
// field by field; all validation errors are collected and reported together.
// Environment variables named FLOWSCOPE_SECTION_FIELD override file values.
// The Watcher reloads the file on change with debouncing, so threshold and
// rate-window tuning takes effect without a restart.
package config
