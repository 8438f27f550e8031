// Package api implements the HTTP REST API and WebSocket server for Gray Macro.
//
// This package provides:
//   - REST endpoints for macro CRUD, document import/export and tree checks
//   - Item editor endpoints that re-run nesting and pairing on every edit
//   - Run control (start, cancel, history) and the variable store
//   - WebSocket hub for node lifecycle events and run notices
//   - JWT bearer authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// Editors talk to the API; the macro.Runner executes runs in the
// background and reports through the Hub, which is both the runner's
// WSHub and an engine.EventSink. Clients subscribe to channels such as
// "macro.run.finished" or "node.*".
//
// # Security
//
// When security.jwt.enabled is set every route except /health and /ws
// requires an HS256 bearer token signed with security.jwt.secret (see
// IssueToken and "graymacro token"). WebSocket connections use
// single-use tickets to keep tokens out of URLs.
//
// # Graceful Degradation
//
// MQTT, run history, and the variable store are optional. Without them
// the related routes answer 503 and everything else keeps working.
package api
