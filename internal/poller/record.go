package poller

import (
	"errors"
	"time"

	"github.com/jpalmerr/devpoll/internal/transport"
)

var (
	// ErrTimeout is reported when a record is not resolved within the
	// scheduler timeout.
	ErrTimeout = errors.New("request timed out")

	// ErrStatus is reported in fail-fast mode when a request finished
	// without HTTP 200.
	ErrStatus = errors.New("request finished without HTTP 200")

	// ErrTransportUnavailable is joined with ErrTimeout when the record
	// never had a transport that could send.
	ErrTransportUnavailable = errors.New("no transport available")
)

// Outcome is delivered to a [Sink] exactly once per resolved record.
type Outcome struct {
	// RecordID identifies the resolved record.
	RecordID string

	// URL is the destination the command was sent to.
	URL string

	// OK is true only on the ready branch.
	OK bool

	// Body is the raw response body on success, nil otherwise.
	Body []byte

	// Elapsed is the time between issuance and resolution.
	Elapsed time.Duration

	// Err is nil on success and one of the package errors otherwise.
	Err error
}

// Sink receives the outcome of a resolved record.
type Sink interface {
	Notify(Outcome)
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(Outcome)

// Notify calls f(o).
func (f SinkFunc) Notify(o Outcome) { f(o) }

type discardSink struct{}

func (discardSink) Notify(Outcome) {}

// Record is one outstanding command.
//
// A record owns its transport from issuance until it is resolved; the
// transport is released exactly once, by [Record.release].
type Record struct {
	ID        string
	URL       string
	Sink      Sink
	Repeat    bool
	CreatedAt time.Time

	// payload is kept only when the scheduler resends payloads on repeat.
	payload   string
	transport transport.Transport
	released  bool
}

// release captures the body, aborts the transport and reports whether this
// call did the release. Later calls return (nil, false).
func (r *Record) release() ([]byte, bool) {
	if r.released {
		return nil, false
	}
	r.released = true
	body := r.transport.Body()
	r.transport.Abort()
	return body, true
}

// Released reports whether the record's transport has been released.
func (r *Record) Released() bool { return r.released }
