// Package monitor is the flow monitoring engine's front door.
//
// A Monitor owns the bounded flow store, the event bus, the optional SQLite
// archive and the retention scheduler, and exposes the operations the proxy
// layer and the console API consume: flow lifecycle recording, querying and
// search, statistics, export, annotations and cleanup.
//
// Monitoring can be toggled at runtime. While disabled, lifecycle calls are
// cheap no-ops so the proxy path does not branch; read operations keep
// serving whatever is already resident.
package monitor
