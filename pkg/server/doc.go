// Package server exposes the flow monitor over HTTP: the console query,
// statistics, export, and annotation endpoints under /flow-monitor, a
// server-sent event stream of monitor activity, and the health and metrics
// endpoints.
//
// Every endpoint speaks JSON. Errors carry a {"error": {"type", "message"}}
// envelope whose type mirrors the flow error taxonomy.
package server
