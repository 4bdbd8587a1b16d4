package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits for the native mechanism
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// commandContentType matches what the device web UI sends with its commands.
const commandContentType = "application/x-www-form-urlencoded"

// HTTPMechanism sends commands with an [http.Client].
type HTTPMechanism struct {
	name   string
	client *http.Client
}

// Native returns the preferred mechanism: a pooled client with keep-alives.
// If client is nil, a client with the default pooling limits is built.
//
// No client-wide timeout is set; the scheduler owns the timeout and aborts
// the transport when it expires.
func Native(client *http.Client) *HTTPMechanism {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
				DisableKeepAlives:   false,
			},
		}
	}
	return &HTTPMechanism{name: "native", client: client}
}

// Legacy returns the fallback mechanism: one connection per request,
// HTTP/1.1 only, no keep-alives. Some embedded HTTP servers only cope with
// this.
func Legacy() *HTTPMechanism {
	return &HTTPMechanism{
		name: "legacy",
		client: &http.Client{
			Transport: &http.Transport{
				DisableKeepAlives: true,
				ForceAttemptHTTP2: false,
				// non-nil empty map disables the HTTP/2 upgrade
				TLSNextProto: map[string]func(string, *tls.Conn) http.RoundTripper{},
			},
		},
	}
}

// Name returns "native" or "legacy".
func (m *HTTPMechanism) Name() string { return m.name }

// Available reports whether the mechanism has a client to send with.
func (m *HTTPMechanism) Available() bool { return m != nil && m.client != nil }

// Open starts the POST on its own goroutine and returns at once.
func (m *HTTPMechanism) Open(ctx context.Context, url, payload string) (Transport, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", commandContentType)

	t := &httpTransport{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go t.run(m.client, req)
	return t, nil
}

// Close closes idle connections held by the mechanism's client.
func (m *HTTPMechanism) Close() {
	if m == nil || m.client == nil {
		return
	}
	if tr, ok := m.client.Transport.(*http.Transport); ok {
		tr.CloseIdleConnections()
	}
}

// httpTransport is one POST in flight. All fields except done are written
// by run before done is closed, or by Abort under mu.
type httpTransport struct {
	cancel    context.CancelFunc
	done      chan struct{}
	abortOnce sync.Once

	mu     sync.Mutex
	status int
	body   []byte
	err    error
}

func (t *httpTransport) run(client *http.Client, req *http.Request) {
	defer close(t.done)

	resp, err := client.Do(req)
	if err != nil {
		t.finish(0, nil, fmt.Errorf("request failed: %w", err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		t.finish(resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err))
		return
	}
	t.finish(resp.StatusCode, body, nil)
}

func (t *httpTransport) finish(status int, body []byte, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
	t.body = body
	t.err = err
}

func (t *httpTransport) Ready() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *httpTransport) Succeeded() bool {
	if !t.Ready() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err == nil && t.status == http.StatusOK
}

func (t *httpTransport) Body() []byte {
	if !t.Ready() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.body
}

func (t *httpTransport) StatusCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *httpTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *httpTransport) Abort() {
	t.abortOnce.Do(func() {
		t.cancel()
		t.mu.Lock()
		t.body = nil
		t.mu.Unlock()
	})
}
