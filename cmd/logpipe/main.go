// Logpipe stores structured logs and serves them back over HTTP and
// WebSocket.
//
// Every log belongs to the scope of the caller key that wrote it, and each
// (logger, scope) pair keeps only its most recent logs. Readers query with
// tag, time, level and id filters, or open a stream that replays matching
// history and then follows new logs.
//
// Usage:
//
//	# Start the server
//	logpipe run --config /etc/logpipe/config.yaml
//
//	# Write a log
//	logpipe write --logger billing --level WARN --tag payments "card declined"
//
//	# Query the store directly
//	logpipe query --filter payments --level WARN --limit 20
//
//	# Follow new logs from a running server
//	logpipe tail --url http://localhost:7068 --filter payments
//
//	# Show version information
//	logpipe version
package main

func main() {
	Execute()
}
