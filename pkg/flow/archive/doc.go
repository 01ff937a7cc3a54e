// Package archive persists finished flows to SQLite for retention beyond the
// in-memory window.
//
// The in-memory store is the hot working set; the archive is the durable
// tail. Finished flows are written with a handful of indexed summary columns
// for querying plus the full record as a JSON blob, so archived flows
// round-trip losslessly.
package archive
