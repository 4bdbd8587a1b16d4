// Package devpoll sends fire-and-forget commands to embedded devices over
// HTTP and reports their results by polling.
//
// Each command is POSTed immediately on its own goroutine. A short
// recurring tick inspects the outstanding requests: finished ones are
// handed to their [Sink], ones older than the timeout are reported as
// failures, and the rest wait for the next tick. Periodic commands are
// re-issued after every result.
//
// # Quick Start
//
//	status, _ := devpoll.NewCommand("http://192.168.1.10/status.xml",
//	    devpoll.WithTarget("status"),
//	    devpoll.WithRepeat(),
//	)
//	q, _ := devpoll.New(devpoll.WithCommand(status), devpoll.WithPort(8080))
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	q.Start(ctx) // blocks until context is cancelled
//
// One-off commands can be issued at any time, from any goroutine:
//
//	q.Issue("http://192.168.1.10/cmd", devpoll.Func(func(body *devpoll.Body) {
//	    if body == nil {
//	        return // timed out
//	    }
//	    cds, ok := body.Field("CDS")
//	    ...
//	}), false, "CMD=READ")
//
// # Sinks
//
//   - [Func]: calls a handler with the response body, or nil on failure
//   - [TargetSink] and [Queue.Target]: render the raw response into a named
//     target, or raise an alert on failure
//
// Targets live in an in-memory store, or Redis with [WithRedis], and are
// served by the API when a port is configured.
//
// # Responses
//
// Device responses are XML. [ExtractField] returns the text of the first
// element with a given name and never fails loudly; a missing or
// malformed field is just absent.
//
// # Architecture
//
//   - internal/transport: HTTP send mechanisms and the fallback selector
//   - internal/poller: request records, the queue and the tick scheduler
//   - internal/store: targets and alerts, in memory or Redis, with pub/sub
//   - internal/server: REST API, Server-Sent Events and WebSocket
//   - internal/clock: time source, with a fake for tests
package devpoll
