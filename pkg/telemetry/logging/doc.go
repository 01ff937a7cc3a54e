// Package logging configures the process-wide structured logger.
//
// The logger is slog with a JSON or text handler; components derive their
// own loggers with slog.Default().With("component", ...). Flow ids travel
// through request contexts so handler logs correlate with store operations.
package logging
