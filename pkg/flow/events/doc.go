// Package events delivers live flow lifecycle notifications to subscribers
// and evaluates threshold breaches on completed flows.
//
// Delivery is best-effort and non-durable: each subscriber owns a bounded
// queue, a subscriber connecting after an event misses it permanently, and a
// slow consumer loses the oldest queued events rather than blocking flow
// processing. Emission order is shared by all subscribers and unaffected by
// concurrent subscribe/unsubscribe.
//
// The bus also owns the process-wide ThresholdConfig (guarded setter, checked
// on every completion) and a sliding-window request-rate tracker fed by
// FlowStarted events.
package events
