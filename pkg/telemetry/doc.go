// Package telemetry provides observability for the flow monitor.
//
// # Components
//
//   - logging: structured slog setup with request-id context propagation
//   - metrics: Prometheus metrics for flows, the store, the event bus,
//     queries, and exports
//
// Both components are configured from their own config sections and wired in
// by the serve command; the monitor and the console server accept a nil
// metrics collector, which disables collection entirely.
package telemetry
