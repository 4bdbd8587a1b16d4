package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jpalmerr/devpoll/internal/store"
)

const (
	// writeTimeout is the maximum time allowed for a single streamed write
	// (SSE event or WebSocket message).
	// Must be <= shutdown timeout to ensure clean shutdown.
	writeTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// maxCommandBody caps POST /api/commands request bodies.
	maxCommandBody = 64 << 10
)

// Issuer accepts commands submitted over the API.
type Issuer interface {
	// IssueCommand queues a command whose outcome is written to target.
	IssueCommand(url, target string, repeat bool, payload string)

	// Pending returns the number of queued records.
	Pending() int
}

// CommandRequest is the body of POST /api/commands.
type CommandRequest struct {
	URL     string `json:"url"`
	Target  string `json:"target"`
	Repeat  bool   `json:"repeat"`
	Payload string `json:"payload"`
}

// Server handles HTTP requests for the devpoll API.
type Server struct {
	store  store.Store
	issuer Issuer
	port   int
	logger *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
}

// NewServer creates a new HTTP [Server]. A nil issuer disables command
// submission and the queue endpoint answers with zero.
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, issuer Issuer, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:  st,
		issuer: issuer,
		port:   port,
		logger: logger,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/targets", s.handleTargets)
	mux.HandleFunc("GET /api/targets/{name}", s.handleTarget)
	mux.HandleFunc("GET /api/alerts", s.handleAlerts)
	mux.HandleFunc("GET /api/queue", s.handleQueue)
	mux.HandleFunc("POST /api/commands", s.handleCommand)
	mux.HandleFunc("GET /api/sse", s.handleSSE)
	mux.HandleFunc("GET /api/ws", s.handleWebSocket)
	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, streaming handlers see it and return.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.logger.Info("api server listening", "addr", ln.Addr().String())

	go func() {
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) handleTargets(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.GetAll())
}

func (s *Server) handleTarget(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	t, ok := s.store.Get(name)
	if !ok {
		http.Error(w, "target not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Alerts())
}

func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	pending := 0
	if s.issuer != nil {
		pending = s.issuer.Pending()
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"pending": pending})
}

// handleCommand validates and queues one command. The outcome lands in the
// named target, or an alert on failure.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if s.issuer == nil {
		http.Error(w, "command submission disabled", http.StatusServiceUnavailable)
		return
	}

	var req CommandRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid command: %v", err), http.StatusBadRequest)
		return
	}
	if err := req.validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.issuer.IssueCommand(req.URL, req.Target, req.Repeat, req.Payload)
	s.logger.Debug("command accepted", "url", req.URL, "target", req.Target, "repeat", req.Repeat)

	s.writeJSON(w, http.StatusAccepted, req)
}

func (c CommandRequest) validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("url must use http or https scheme")
	}
	if c.Target == "" {
		return fmt.Errorf("target is required")
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// snapshot returns one target event per stored target, sent to new
// streaming clients before live updates.
func (s *Server) snapshot() []store.Event {
	targets := s.store.GetAll()
	events := make([]store.Event, 0, len(targets))
	for i := range targets {
		events = append(events, store.Event{Kind: store.KindTarget, Target: &targets[i]})
	}
	return events
}

// handleSSE streams store events via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	for _, e := range s.snapshot() {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}
