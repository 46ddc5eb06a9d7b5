// Package middleware provides HTTP middleware for the logpipe server.
//
// # Middleware Chain
//
//	handler = Recovery(Logging(RequestID(CORS(handler))))
//
// Order (innermost to outermost):
//  1. CORS: Add Cross-Origin Resource Sharing headers
//  2. RequestID: Generate and propagate request ID
//  3. Logging: Log request/response details
//  4. Recovery: Recover from panics
//
// RateLimit is applied per route rather than globally, since only writes
// are limited.
//
// There is no per-request timeout middleware: /stream connections live for
// as long as the client stays connected.
package middleware
