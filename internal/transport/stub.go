package transport

import (
	"context"
	"net/http"
	"sync"
)

// Stub is a Transport whose completion is driven by the test.
type Stub struct {
	mu     sync.Mutex
	ready  bool
	status int
	body   []byte
	aborts int
}

// NewStub returns a Stub that is not ready.
func NewStub() *Stub { return &Stub{} }

// Complete marks the stub finished with the given status and body.
func (s *Stub) Complete(status int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	s.status = status
	s.body = body
}

func (s *Stub) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Stub) Succeeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready && s.status == http.StatusOK
}

func (s *Stub) Body() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil
	}
	return s.body
}

func (s *Stub) StatusCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Stub) Err() error { return nil }

// Abort counts calls so tests can assert release happens exactly once.
func (s *Stub) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborts++
	s.body = nil
}

// Aborts returns how many times Abort was called.
func (s *Stub) Aborts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborts
}

// Sent is one request opened through a StubMechanism.
type Sent struct {
	URL     string
	Payload string
	Stub    *Stub
}

// StubMechanism hands out a fresh [Stub] for every Open.
type StubMechanism struct {
	// Label is returned by Name; defaults to "stub".
	Label string

	// Disabled makes Available return false.
	Disabled bool

	// OpenErr, when set, is returned by every Open.
	OpenErr error

	mu   sync.Mutex
	sent []Sent
}

func (m *StubMechanism) Name() string {
	if m.Label == "" {
		return "stub"
	}
	return m.Label
}

func (m *StubMechanism) Available() bool { return !m.Disabled }

func (m *StubMechanism) Open(_ context.Context, url, payload string) (Transport, error) {
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	stub := NewStub()
	m.mu.Lock()
	m.sent = append(m.sent, Sent{URL: url, Payload: payload, Stub: stub})
	m.mu.Unlock()
	return stub, nil
}

// Sent returns a copy of every request opened so far, in order.
func (m *StubMechanism) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Sent, len(m.sent))
	copy(cp, m.sent)
	return cp
}

// Last returns the most recently opened stub, or nil.
func (m *StubMechanism) Last() *Stub {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	return m.sent[len(m.sent)-1].Stub
}
