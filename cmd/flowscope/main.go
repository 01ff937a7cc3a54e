// Flowscope is a flow monitoring engine for LLM proxy traffic.
//
// It keeps a bounded in-memory store of request/response flows and serves a
// console API for querying, searching, annotating, and exporting them, plus
// a live event stream, Prometheus metrics, and an optional SQLite archive.
//
// Usage:
//
//	# Start the console server with default configuration
//	flowscope serve
//
//	# Start with a custom configuration file
//	flowscope serve --config /etc/flowscope/flowscope.yaml
//
//	# Validate a configuration file without starting
//	flowscope validate --config flowscope.yaml
//
//	# Show version information
//	flowscope version
package main

func main() {
	Execute()
}
