// Package api implements the HTTP REST API and WebSocket server for valvectl.
//
// This package provides:
//   - REST endpoints to start and stop valve operations
//   - read access to recorded operations and their event logs
//   - a WebSocket stream per operation, replaying history then following live
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// Requests are translated into channel specs and handed to an
// operation.Manager, which runs at most one operation at a time. The Hub is
// registered as a history.Observer on that manager, so every event the
// scheduler emits reaches the stream clients in sequence order.
//
// # Security
//
// Every route except /health, /metrics and the stream upgrade requires a
// bearer token minted by `valvectl token`. Viewers may read history;
// operators may also operate and stop valves. WebSocket connections use
// single-use tickets to keep tokens out of URLs.
//
// # Graceful Degradation
//
// Without a history repository the history endpoints return 503, and streams
// carry only live events of the running operation.
package api
