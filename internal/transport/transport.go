package transport

import "context"

// Transport is a handle on one asynchronous request.
type Transport interface {
	// Ready reports whether the request has finished, successfully or not.
	Ready() bool

	// Succeeded reports whether the request finished with HTTP 200.
	Succeeded() bool

	// Body returns the response body once Ready is true, nil otherwise.
	Body() []byte

	// Abort cancels the request if still in flight and releases the
	// response. Safe to call more than once.
	Abort()
}

// StatusReporter is implemented by transports that can describe how a
// finished request ended. Used for logging only.
type StatusReporter interface {
	StatusCode() int
	Err() error
}

// Mechanism is one way of sending a request.
type Mechanism interface {
	// Name identifies the mechanism in logs.
	Name() string

	// Available reports whether the mechanism can be used at all.
	Available() bool

	// Open starts an asynchronous POST of payload to url and returns
	// immediately.
	Open(ctx context.Context, url, payload string) (Transport, error)
}

// Unavailable is the transport handed out when no mechanism could send.
// It never becomes ready, so its record resolves through the timeout.
type Unavailable struct{}

func (Unavailable) Ready() bool     { return false }
func (Unavailable) Succeeded() bool { return false }
func (Unavailable) Body() []byte    { return nil }
func (Unavailable) Abort()          {}

// IsUnavailable reports whether t is the [Unavailable] transport.
func IsUnavailable(t Transport) bool {
	_, ok := t.(Unavailable)
	return ok
}
