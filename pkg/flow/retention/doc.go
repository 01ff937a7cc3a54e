// Package retention prunes old flows on a schedule.
//
// The pruner applies an age-based cleanup to the in-memory store, optionally
// archiving finished flows to SQLite before they are dropped, and trims the
// archive itself on a longer horizon. The scheduler runs the pruner on a
// cron expression.
package retention
