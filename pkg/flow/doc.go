// Package flow defines the core data model for the flow monitor: the
// FlowRecord entity that tracks one LLM API request/response exchange from
// admission to a terminal state, plus the filter and error types shared by
// the store, query, stats and export subsystems.
//
// # Flow Lifecycle
//
// A flow is created in the Pending state when the proxy admits a request,
// optionally moves to Streaming while response chunks arrive, and ends in
// exactly one terminal state:
//
//	Pending → Streaming → Completed
//	Pending → Completed | Failed | Cancelled
//	Streaming → Completed | Failed | Cancelled
//
// Terminal states are final. After a flow terminates only its annotations
// (star, marker, comment, tags) remain mutable.
//
// # Open Enums
//
// FlowType and StopReason are open unions: the well-known variants are
// first-class, and unrecognized upstream values are preserved verbatim in an
// Other variant rather than dropped. This keeps records round-trippable when
// providers introduce new behaviors.
package flow
