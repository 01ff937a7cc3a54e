// Package metrics provides Prometheus instrumentation for the flow monitor.
//
// A single Collector owns the registry and the metric families:
//
//   - flowscope_monitor_flows_total: finished flows by provider, model, state
//   - flowscope_monitor_flow_duration_seconds: flow duration histogram
//   - flowscope_monitor_flow_tokens_total: tokens by provider, model, type
//   - flowscope_monitor_store_flows: current store occupancy
//   - flowscope_monitor_store_evictions_total: lifetime eviction count
//   - flowscope_monitor_events_dropped_total: events lost to slow consumers
//   - flowscope_monitor_event_subscribers: attached event subscribers
//   - flowscope_monitor_query_duration_seconds: query latency histogram
//   - flowscope_monitor_exports_total: exports by format
//
// Mount Handler() on the HTTP server to expose the registry.
package metrics
