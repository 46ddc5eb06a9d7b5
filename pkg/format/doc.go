// Package format renders logs, notices and errors for HTTP and WebSocket
// clients.
//
// A Registry maps format names to Formatters. Three formats are built in:
//
//   - json: logs as a JSON array, notices as {"message": ...}, errors as
//     {"error": ..., "message": ...}
//   - console: one plain text line per log
//   - cconsole: console with ANSI colours chosen from the log level and tags
//
// Every Formatter returns an Output carrying the body, its MIME type and
// the HTTP status code to send with it. Unknown format names fall back to
// the registry default.
package format
