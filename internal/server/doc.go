// Package server provides the HTTP API over the target store and the
// command queue.
//
//   - REST: "/api/targets", "/api/targets/{name}", "/api/alerts", "/api/queue"
//   - Command issuance: POST "/api/commands"
//   - Server-Sent Events: "/api/sse"
//   - WebSocket: "/api/ws"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the devpoll library should not need this package directly. The
// server is started by [devpoll.Queue.Start] when a port is configured.
package server
