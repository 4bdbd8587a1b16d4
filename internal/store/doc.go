// Package store holds the named render targets and alerts written by
// devpoll's target sinks.
//
// This package is internal to devpoll. A target sink writes the raw
// response text of a completed command into a named [Target]; a failed
// command raises an [Alert] instead. External UIs read targets through the
// server package, either as snapshots or as a live stream of [Event]
// values.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-process implementation with channel pub/sub
//   - [RedisStore]: Redis-backed implementation for sharing targets
//     between processes
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss updates rather than block the scheduler).
package store
