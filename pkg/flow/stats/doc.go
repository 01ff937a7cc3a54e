// Package stats aggregates flow snapshots into summary and time-series
// statistics.
//
// Aggregation works on the snapshots the store hands out, so a stats result
// is a consistent point-in-time view. Empty inputs and zero denominators
// produce zero-valued figures, never NaN or a panic.
package stats
