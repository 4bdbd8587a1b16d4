package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/devpoll/internal/store"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockStore implements store.Store for testing.
type mockStore struct {
	mu          sync.RWMutex
	targets     []store.Target
	alerts      []store.Alert
	subscribers map[chan store.Event]struct{}
	subMu       sync.Mutex
}

func newMockStore() *mockStore {
	return &mockStore{
		subscribers: make(map[chan store.Event]struct{}),
	}
}

func (m *mockStore) Write(t store.Target) {
	m.mu.Lock()
	// replace if exists, otherwise append
	found := false
	for i, existing := range m.targets {
		if existing.Name == t.Name {
			m.targets[i] = t
			found = true
			break
		}
	}
	if !found {
		m.targets = append(m.targets, t)
	}
	m.mu.Unlock()

	m.publish(store.Event{Kind: store.KindTarget, Target: &t})
}

func (m *mockStore) Raise(a store.Alert) {
	m.mu.Lock()
	m.alerts = append(m.alerts, a)
	m.mu.Unlock()

	m.publish(store.Event{Kind: store.KindAlert, Alert: &a})
}

func (m *mockStore) publish(e store.Event) {
	m.subMu.Lock()
	for ch := range m.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
	m.subMu.Unlock()
}

func (m *mockStore) Get(name string) (store.Target, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.targets {
		if t.Name == name {
			return t, true
		}
	}
	return store.Target{}, false
}

func (m *mockStore) GetAll() []store.Target {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]store.Target, len(m.targets))
	copy(result, m.targets)
	return result
}

func (m *mockStore) Alerts() []store.Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]store.Alert, len(m.alerts))
	copy(result, m.alerts)
	return result
}

func (m *mockStore) Subscribe() <-chan store.Event {
	ch := make(chan store.Event, 100)
	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()
	return ch
}

func (m *mockStore) Unsubscribe(ch <-chan store.Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (m *mockStore) subscriberCount() int {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	return len(m.subscribers)
}

// waitForSubscribers polls until n handlers have subscribed.
func waitForSubscribers(t *testing.T, m *mockStore, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for m.subscriberCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("only %d/%d subscribers", m.subscriberCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --- SSE ---

func TestHandleSSE_BasicFlow(t *testing.T) {
	ms := newMockStore()
	ms.Write(store.Target{Name: "cds", Content: "<CDS>3</CDS>"})
	ms.Write(store.Target{Name: "fan", Content: "<FAN>1</FAN>"})

	srv := NewServer(ms, nil, 0, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `"name":"cds"`) {
		t.Errorf("response should contain cds, got: %s", body)
	}
	if !strings.Contains(body, `"name":"fan"`) {
		t.Errorf("response should contain fan, got: %s", body)
	}
}

func TestHandleSSE_StreamsUpdates(t *testing.T) {
	ms := newMockStore()
	srv := NewServer(ms, nil, 0, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	waitForSubscribers(t, ms, 1)
	ms.Raise(store.Alert{Target: "cds", Message: "request timed out"})

	// give time for update to be written
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("handler did not exit after context cancellation")
	}

	events := parseSSEEvents(rec.Body.String())
	if len(events) != 1 || events[0].Kind != store.KindAlert {
		t.Fatalf("events = %+v, want one alert", events)
	}
	if events[0].Alert.Message != "request timed out" {
		t.Errorf("alert message = %q", events[0].Alert.Message)
	}
}

func TestHandleSSE_ClientDisconnect(t *testing.T) {
	ms := newMockStore()
	srv := NewServer(ms, nil, 0, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	waitForSubscribers(t, ms, 1)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("handler did not exit after client disconnect")
	}

	if n := ms.subscriberCount(); n != 0 {
		t.Errorf("subscribers after disconnect = %d, want 0", n)
	}
}

func TestHandleSSE_ConcurrentClientsShutdown(t *testing.T) {
	ms := newMockStore()
	ms.Write(store.Target{Name: "cds"})

	srv := NewServer(ms, nil, 0, testLogger())

	serverCtx, serverCancel := context.WithCancel(context.Background())

	numClients := 10
	var wg sync.WaitGroup
	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(serverCtx)
			srv.handleSSE(httptest.NewRecorder(), req)
		}()
	}

	waitForSubscribers(t, ms, numClients)
	serverCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("not all handlers exited after shutdown")
	}
}

func TestHandleSSE_SSENotSupported(t *testing.T) {
	ms := newMockStore()
	srv := NewServer(ms, nil, 0, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)

	// use a writer that doesn't support flushing
	w := &nonFlushWriter{header: make(http.Header)}

	srv.handleSSE(w, req)

	if w.statusCode != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.statusCode)
	}
}

type nonFlushWriter struct {
	header     http.Header
	statusCode int
	body       []byte
}

func (n *nonFlushWriter) Header() http.Header {
	return n.header
}

func (n *nonFlushWriter) Write(b []byte) (int, error) {
	n.body = append(n.body, b...)
	return len(b), nil
}

func (n *nonFlushWriter) WriteHeader(statusCode int) {
	n.statusCode = statusCode
}

func TestHandleSSE_Headers(t *testing.T) {
	ms := newMockStore()
	srv := NewServer(ms, nil, 0, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	expectedHeaders := map[string]string{
		"Content-Type":                "text/event-stream",
		"Cache-Control":               "no-cache",
		"Connection":                  "keep-alive",
		"Access-Control-Allow-Origin": "*",
	}

	for key, expected := range expectedHeaders {
		if got := rec.Header().Get(key); got != expected {
			t.Errorf("header %s = %q, want %q", key, got, expected)
		}
	}
}

func TestHandleSSE_JSONFormat(t *testing.T) {
	ms := newMockStore()
	ms.Write(store.Target{
		Name:      "cds",
		Content:   "<r><CDS>3</CDS></r>",
		URL:       "http://device/cmd",
		UpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	srv := NewServer(ms, nil, 0, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	events := parseSSEEvents(rec.Body.String())
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %s", len(events), rec.Body.String())
	}

	e := events[0]
	if e.Kind != store.KindTarget || e.Target == nil {
		t.Fatalf("event = %+v, want target event", e)
	}
	if e.Target.Content != "<r><CDS>3</CDS></r>" {
		t.Errorf("Content = %q", e.Target.Content)
	}
	if e.Alert != nil {
		t.Errorf("Alert = %+v, want nil", e.Alert)
	}
}

// --- Integration tests for shutdown behavior ---
//
// These tests use httptest.Server to create real HTTP connections that support
// write deadlines. Mock ResponseWriters don't support SetWriteDeadline.

func TestHandleSSE_ServerShutdownIntegration(t *testing.T) {
	ms := newMockStore()
	ms.Write(store.Target{Name: "cds"})

	srv := NewServer(ms, nil, 0, testLogger())

	serverCtx, serverCancel := context.WithCancel(context.Background())

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// derive request context from server context (simulates BaseContext)
		srv.handleSSE(w, r.WithContext(serverCtx))
	})

	ts := httptest.NewServer(handler)
	defer ts.Close()

	connDone := make(chan error, 1)
	go func() {
		resp, err := ts.Client().Get(ts.URL)
		if err != nil {
			connDone <- err
			return
		}
		defer func() { _ = resp.Body.Close() }()

		// read until connection closes
		buf := make([]byte, 1024)
		for {
			if _, err := resp.Body.Read(buf); err != nil {
				connDone <- nil
				return
			}
		}
	}()

	waitForSubscribers(t, ms, 1)
	serverCancel()

	select {
	case <-connDone:
	case <-time.After(3 * time.Second):
		t.Fatal("SSE connection did not close after server shutdown")
	}
}

func parseSSEEvents(body string) []store.Event {
	var events []store.Event
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			var e store.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e); err == nil {
				events = append(events, e)
			}
		}
	}
	return events
}

// --- Server Start ---

func TestStart_AvailablePort_ReturnsNil(t *testing.T) {
	ms := newMockStore()
	// port 0 = OS assigns available port
	srv := NewServer(ms, nil, 0, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Errorf("Start() on available port returned error: %v", err)
	}
	if srv.Addr() == nil {
		t.Error("Addr() = nil after Start()")
	}
}

func TestStart_PortInUse_ReturnsError(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	port := ln.Addr().(*net.TCPAddr).Port

	srv := NewServer(newMockStore(), nil, port, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = srv.Start(ctx)
	if err == nil {
		t.Fatal("Start() on occupied port should return error")
	}
	if !strings.Contains(err.Error(), "failed to bind") {
		t.Errorf("expected bind error, got: %v", err)
	}
}

func TestStart_InvalidPort_ReturnsError(t *testing.T) {
	srv := NewServer(newMockStore(), nil, -1, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err == nil {
		t.Fatal("Start() with invalid port should return error")
	}
}

func TestStart_ServesAPI(t *testing.T) {
	ms := newMockStore()
	ms.Write(store.Target{Name: "cds", Content: "3"})

	srv := NewServer(ms, nil, 0, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	port := srv.Addr().(*net.TCPAddr).Port
	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(port) + "/api/targets/cds")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

// --- Benchmark ---

func BenchmarkHandleSSE_SingleClient(b *testing.B) {
	ms := newMockStore()
	for i := 0; i < 10; i++ {
		ms.Write(store.Target{Name: "target-" + string(rune('a'+i))})
	}

	srv := NewServer(ms, nil, 0, testLogger())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
		srv.handleSSE(httptest.NewRecorder(), req)
		cancel()
	}
}
