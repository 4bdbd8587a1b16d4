// Package transport provides the asynchronous send mechanisms used by the
// devpoll scheduler.
//
// A [Transport] is a handle on one in-flight POST. It never calls back into
// the scheduler; completion is observed by polling [Transport.Ready] and
// [Transport.Succeeded]. The [Selector] picks the first available
// [Mechanism] in a fixed preference order (native, then legacy) and falls
// back to [Unavailable], which never becomes ready, when nothing can send.
//
// [Stub] and [StubMechanism] are controllable stand-ins for tests in other
// packages.
package transport
