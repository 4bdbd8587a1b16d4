package devpoll

import (
	"time"

	"github.com/jpalmerr/devpoll/internal/clock"
	"github.com/jpalmerr/devpoll/internal/poller"
	"github.com/jpalmerr/devpoll/internal/store"
)

// Result is the outcome of one resolved command, delivered to its [Sink]
// exactly once.
type Result struct {
	// RecordID identifies the resolved record in logs and the API.
	RecordID string

	// URL is the command destination.
	URL string

	// OK is true when the device answered with HTTP 200 before the timeout.
	OK bool

	// Body is the response on success and nil on failure.
	Body *Body

	// Elapsed is the time from issuance to resolution.
	Elapsed time.Duration

	// Err is nil on success. Otherwise it matches [ErrTimeout] or [ErrStatus]
	// with errors.Is.
	Err error
}

// Sink receives command results.
//
// Notify is called on the queue's tick goroutine after the request has been
// released. It may call [Queue.Issue]. A panicking sink is logged and does
// not stop the queue.
type Sink interface {
	Notify(Result)
}

// Func returns a [Sink] that calls handler with the response body on
// success and with nil on failure.
//
// Example:
//
//	sink := devpoll.Func(func(body *devpoll.Body) {
//	    if body == nil {
//	        log.Println("command failed")
//	        return
//	    }
//	    cds, _ := body.Field("CDS")
//	})
func Func(handler func(*Body)) Sink {
	return funcSink(handler)
}

type funcSink func(*Body)

func (f funcSink) Notify(r Result) {
	if r.OK {
		f(r.Body)
		return
	}
	f(nil)
}

// ResultFunc adapts a function that wants the whole [Result] to [Sink].
type ResultFunc func(Result)

// Notify calls f(r).
func (f ResultFunc) Notify(r Result) { f(r) }

// Renderer displays command output in named targets.
type Renderer interface {
	// Render replaces the content of target with the raw response text.
	Render(target, url, content string)

	// Alert shows a user-visible failure for target.
	Alert(target, url, message string)
}

// TargetSink returns a [Sink] that renders successful responses into the
// named target and raises an alert on failure. A failure never changes the
// target's content.
func TargetSink(target string, r Renderer) Sink {
	return targetSink{target: target, renderer: r}
}

type targetSink struct {
	target   string
	renderer Renderer
}

func (s targetSink) Notify(r Result) {
	if r.OK {
		s.renderer.Render(s.target, r.URL, r.Body.Text())
		return
	}
	s.renderer.Alert(s.target, r.URL, failureMessage(r))
}

func failureMessage(r Result) string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return "request failed"
}

// multiSink notifies every sink in order.
type multiSink []Sink

func (m multiSink) Notify(r Result) {
	for _, s := range m {
		s.Notify(r)
	}
}

// storeRenderer renders into the target store.
type storeRenderer struct {
	store store.Store
	clock clock.Clock
}

func (s storeRenderer) Render(target, url, content string) {
	s.store.Write(store.Target{
		Name:      target,
		Content:   content,
		URL:       url,
		UpdatedAt: s.clock.Now(),
	})
}

func (s storeRenderer) Alert(target, url, message string) {
	s.store.Raise(store.Alert{
		Target:   target,
		URL:      url,
		Message:  message,
		RaisedAt: s.clock.Now(),
	})
}

func toResult(o poller.Outcome) Result {
	r := Result{
		RecordID: o.RecordID,
		URL:      o.URL,
		OK:       o.OK,
		Elapsed:  o.Elapsed,
		Err:      o.Err,
	}
	if o.OK {
		r.Body = &Body{raw: o.Body}
	}
	return r
}
