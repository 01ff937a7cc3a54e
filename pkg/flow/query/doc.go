// Package query filters, sorts, paginates and searches flow snapshots.
//
// Two filtering surfaces are offered. The structured Filter combines typed
// criteria as a conjunction: a flow matches only if every populated criterion
// accepts it. The expression language covers the same fields with boolean
// composition:
//
//	provider == "openai" and (total_tokens > 1000 or has_error) and not starred
//
// Expressions are parsed once per query into a predicate tree; parse errors
// carry the byte position and offending token.
//
// All functions operate on snapshots handed out by the store, so results are
// stable even while the store keeps mutating.
package query
