// Package server exposes a log stash over HTTP and WebSocket.
//
// # Routes
//
//   - POST /write - store one log or a JSON array of logs
//   - GET /read - filtered query
//   - GET /stream - WebSocket replay of matching history, then live tail
//   - GET /health, GET /ready - liveness and readiness probes
//   - GET /version - build information
//   - GET /metrics - Prometheus metrics (path configurable)
//
// Every other path answers 404 in the requested format.
//
// # Parameters
//
// /read and /stream take their filter from the query string:
//
//	filter   comma-separated tags, "*" for all
//	from, to epoch seconds, epoch milliseconds or an ISO 8601 date
//	limit    maximum number of logs
//	afterId  only logs with a greater id
//	level    severity threshold
//	format   json, console or cconsole
//
// The caller key comes from the authKey parameter, the X-Auth-Key header or
// an Authorization bearer token.
//
// # Streams
//
// A stream client may send text messages to change its filter, either as a
// JSON object of parameters or as space-separated rules:
//
//	filter=db,http level=WARN
//
// The update is merged into the current parameters, except filter, which is
// replaced. The server answers "Filter applied" and continues with the logs
// after the last one sent that match the new filter. The caller key of a
// stream cannot be changed.
//
// Logs already queued when the client is written to are sent together, as
// one JSON array in the json format.
//
// # Middleware Chain
//
// Requests pass through, outermost first: recovery, logging, request ID,
// CORS, tracing and caller key extraction. Writes are additionally rate
// limited per caller key when server.rate_limit is enabled.
//
// # Errors
//
// Validation and filter errors answer 400, unknown caller keys 401,
// oversized bodies 413 and storage failures 503. /write always reports
// errors as JSON; other routes use the requested format.
package server
