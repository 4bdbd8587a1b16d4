// Package poller provides the request queue and poll scheduler for devpoll.
//
// This package is internal to devpoll. Commands are issued as [Record]
// values onto a [Queue]; a single [Scheduler] loop ticks at a fixed
// interval, drains a snapshot of the queue and resolves each record:
//
//   - ready and HTTP 200: the sink receives the body
//   - older than the timeout: the sink receives a failure
//   - otherwise: the record goes back to the tail for the next tick
//
// The main components are:
//
//   - [Record]: One outstanding command and the transport it owns
//   - [Queue]: Insertion-ordered pending records with snapshot drain
//   - [Scheduler]: Issuance, the tick, and the self-rearming loop
//   - [Outcome]: What a resolved record reports to its [Sink]
//
// Users of the devpoll library should not need to interact with this
// package directly. Configuration is done through the main devpoll package.
package poller
