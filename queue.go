package devpoll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/devpoll/internal/clock"
	"github.com/jpalmerr/devpoll/internal/poller"
	"github.com/jpalmerr/devpoll/internal/server"
	"github.com/jpalmerr/devpoll/internal/store"
	"github.com/jpalmerr/devpoll/internal/transport"
)

const (
	defaultPollInterval = poller.DefaultInterval
	defaultTimeout      = poller.DefaultTimeout
)

// Queue issues fire-and-forget commands and reports their results.
//
// Commands are sent immediately; a tick every poll interval checks which
// requests have finished or timed out and notifies their sinks. Ticks never
// overlap. A Queue is created with [New] and run with [Queue.Start]:
//
//	q, err := devpoll.New(devpoll.WithCommand(cmd), devpoll.WithPort(8080))
//	if err != nil {
//	    slog.Error("failed to create queue", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	q.Start(ctx) // blocks until context cancelled
type Queue struct {
	scheduler *poller.Scheduler
	selector  *transport.Selector
	store     store.Store
	renderer  Renderer
	commands  []Command
	callbacks []func(Result)
	port      int
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	started bool
}

// New creates a [Queue] with the given options.
//
// No option is required. Defaults:
//   - Poll interval: 10ms
//   - Timeout: 30 seconds
//   - Port: 0 (no API server)
//   - Transports: native, then legacy
//   - Targets kept in memory
//
// The queue accepts [Queue.Issue] calls as soon as New returns; results are
// delivered once [Queue.Start] runs the tick loop.
func New(opts ...Option) (*Queue, error) {
	cfg := &queueConfig{
		pollInterval: defaultPollInterval,
		timeout:      defaultTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.clock
	if clk == nil {
		clk = clock.Real()
	}

	selector := newSelector(cfg, logger)
	if len(selector.Names()) == 0 {
		logger.Warn("all transports disabled; every command will time out")
	}

	var st store.Store
	if cfg.redis != nil {
		st = store.NewRedisStore(store.RedisOptions{
			Addr:     cfg.redis.Addr,
			Password: cfg.redis.Password,
			DB:       cfg.redis.DB,
			Prefix:   cfg.redis.Prefix,
		}, logger)
	} else {
		st = store.NewMemoryStore()
	}

	renderer := cfg.renderer
	if renderer == nil {
		renderer = storeRenderer{store: st, clock: clk}
	}

	scheduler := poller.NewScheduler(selector, poller.Config{
		Interval:      cfg.pollInterval,
		Timeout:       cfg.timeout,
		ResendPayload: cfg.resendPayload,
		FailFast:      cfg.failFast,
	}, clk, logger)

	return &Queue{
		scheduler: scheduler,
		selector:  selector,
		store:     st,
		renderer:  renderer,
		commands:  cfg.commands,
		callbacks: cfg.resultCallbacks,
		port:      cfg.port,
		interval:  cfg.pollInterval,
		timeout:   cfg.timeout,
		logger:    logger,
	}, nil
}

func newSelector(cfg *queueConfig, logger *slog.Logger) *transport.Selector {
	if cfg.mechanisms != nil {
		return transport.NewSelector(logger, cfg.mechanisms...)
	}

	var mechanisms []transport.Mechanism
	if !cfg.disableNative {
		mechanisms = append(mechanisms, transport.Native(cfg.httpClient))
	}
	if !cfg.disableLegacy {
		mechanisms = append(mechanisms, transport.Legacy())
	}
	return transport.NewSelector(logger, mechanisms...)
}

// Issue sends payload to url and queues the request.
//
// Issue returns immediately and never fails: if the request cannot be sent
// it is reported to sink as a timeout. With repeat set, the same command is
// issued again after every result. A nil sink discards the result.
//
// Issue is safe for concurrent use, including from inside a sink.
func (q *Queue) Issue(url string, sink Sink, repeat bool, payload string) {
	q.scheduler.Issue(url, q.bridge(sink), repeat, payload)
}

// IssueCommand issues a command that renders into the named target. It
// serves POST /api/commands.
func (q *Queue) IssueCommand(url, target string, repeat bool, payload string) {
	q.Issue(url, q.Target(target), repeat, payload)
}

// Target returns a sink that renders results into the named target.
//
// Successful responses replace the target's content; failures raise an
// alert and leave the content unchanged.
func (q *Queue) Target(name string) Sink {
	return TargetSink(name, q.renderer)
}

// Content returns the current content of a target in the target store.
func (q *Queue) Content(name string) (string, bool) {
	t, ok := q.store.Get(name)
	if !ok {
		return "", false
	}
	return t.Content, true
}

// Pending returns the number of requests waiting to be resolved.
func (q *Queue) Pending() int {
	return q.scheduler.Pending()
}

// Tick runs one resolution pass immediately.
//
// Tick exists for driving the queue by hand, for example in tests with a
// long poll interval. Do not call it while [Queue.Start] is running.
func (q *Queue) Tick() {
	q.scheduler.Tick()
}

// Start issues the configured commands, runs the tick loop and, when a
// port is set, serves the API.
//
// Start blocks until ctx is cancelled. On return the tick loop has stopped,
// requests still in flight are aborted without notifying their sinks, and
// the API server is shutting down.
//
// Returns nil on graceful shutdown, or an error if the API server fails to
// start or Start was already called.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return errors.New("queue already started")
	}
	q.started = true
	q.mu.Unlock()

	q.logger.Info("devpoll starting",
		"command_count", len(q.commands),
		"transports", q.selector.Names(),
	)
	q.logger.Info("polling configured",
		"interval", q.interval.String(),
		"timeout", q.timeout.String(),
	)

	defer q.close()

	// check if context already cancelled
	if ctx.Err() != nil {
		q.scheduler.Stop()
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	if q.port > 0 {
		srv := server.NewServer(q.store, q, q.port, q.logger)
		if err := srv.Start(gctx); err != nil {
			q.scheduler.Stop()
			return fmt.Errorf("failed to start API server: %w", err)
		}
		q.logger.Info("api available", "url", fmt.Sprintf("http://localhost:%d/api/targets", q.port))
	}

	// alerts are logged as well as stored
	alerts := q.store.Subscribe()
	g.Go(func() error {
		defer q.store.Unsubscribe(alerts)
		for {
			select {
			case e, ok := <-alerts:
				if !ok {
					return nil
				}
				if e.Kind == store.KindAlert && e.Alert != nil {
					q.logger.Warn("alert raised",
						"target", e.Alert.Target,
						"url", e.Alert.URL,
						"message", e.Alert.Message,
					)
				}
			case <-gctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		q.scheduler.Start(gctx)
		<-gctx.Done()
		q.scheduler.Stop()
		return nil
	})

	for _, c := range q.commands {
		q.Issue(c.url, c.sink(q), c.repeat, c.payload)
	}

	err := g.Wait()
	q.logger.Info("devpoll stopped")
	return err
}

func (q *Queue) close() {
	q.selector.Close()
	if c, ok := q.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			q.logger.Warn("failed to close target store", "error", err)
		}
	}
}

// bridge adapts a public sink, plus the result callbacks, to the scheduler.
// A sink that panics skips the callbacks for that result.
func (q *Queue) bridge(s Sink) poller.Sink {
	if s == nil && len(q.callbacks) == 0 {
		return nil
	}
	return poller.SinkFunc(func(o poller.Outcome) {
		r := toResult(o)
		if s != nil {
			s.Notify(r)
		}
		for _, cb := range q.callbacks {
			invokeCallbackSafe(cb, r, q.logger)
		}
	})
}

// invokeCallbackSafe calls a result callback with panic recovery.
func invokeCallbackSafe(cb func(Result), r Result, logger *slog.Logger) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("result callback panicked",
				"panic", p,
				"record_id", r.RecordID,
				"url", r.URL,
			)
		}
	}()
	cb(r)
}
