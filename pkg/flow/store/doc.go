// Package store provides the bounded, concurrent, in-memory container of
// flow records.
//
// The store accepts create/update/finalize operations from the proxy layer,
// enforces the lifecycle state machine, and keeps occupancy under a
// configured ceiling by evicting the oldest terminal record first (then the
// oldest pending one; streaming records only under explicit memory
// pressure). Operator-driven removal is available as single/batch delete and
// as bulk cleanup policies.
//
// Structural operations (insert, evict, delete, cleanup) are mutually
// exclusive with each other and with full-store snapshots; reads hand out
// deep copies so query, stats and export results are isolated from ongoing
// mutation. Backing-file I/O is staged outside the structural lock.
//
// Every successful create, update and delete publishes a corresponding event
// on the bus; eviction and cleanup are a sequence of deletes for
// event-emission purposes.
package store
