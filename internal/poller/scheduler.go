package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/devpoll/internal/clock"
	"github.com/jpalmerr/devpoll/internal/transport"
)

const (
	// DefaultInterval is the delay between the end of one tick and the
	// start of the next.
	DefaultInterval = 10 * time.Millisecond

	// DefaultTimeout is how long a record may stay unresolved.
	DefaultTimeout = 30 * time.Second
)

// Sender opens a transport for one command. [transport.Selector] is the
// production implementation.
type Sender interface {
	Send(ctx context.Context, url, payload string) transport.Transport
}

// Config holds the scheduler settings. Zero durations mean the defaults.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration

	// ResendPayload keeps each record's payload and sends it again when a
	// repeat record is issued. Off by default: repeats go out empty.
	ResendPayload bool

	// FailFast resolves a finished request that did not return HTTP 200
	// right away instead of waiting for the timeout.
	FailFast bool
}

// TickStats summarises one tick.
type TickStats struct {
	// Processed is the queue length captured when the tick started.
	Processed int
	Completed int
	TimedOut  int
	Failed    int
	Pending   int
}

// Scheduler issues records and resolves them on a recurring tick.
//
// Only one tick runs at a time: the loop arms the next tick after the
// current one returns. Issue may be called from any goroutine, including
// from a sink during a tick.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	queue  *Queue
	sender Sender
	clock  clock.Clock
	logger *slog.Logger

	interval      time.Duration
	timeout       time.Duration
	resendPayload bool
	failFast      bool

	// sendCtx parents every transport; cancelled by Stop.
	sendCtx    context.Context
	sendCancel context.CancelFunc

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a [Scheduler]. A nil clock means the real clock and a
// nil logger means slog.Default().
//
// The scheduler accepts records immediately; nothing is resolved until
// [Scheduler.Start] runs the loop or a caller invokes [Scheduler.Tick].
func NewScheduler(sender Sender, cfg Config, clk clock.Clock, logger *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	sendCtx, sendCancel := context.WithCancel(context.Background())

	return &Scheduler{
		queue:         NewQueue(),
		sender:        sender,
		clock:         clk,
		logger:        logger,
		interval:      cfg.Interval,
		timeout:       cfg.Timeout,
		resendPayload: cfg.ResendPayload,
		failFast:      cfg.FailFast,
		sendCtx:       sendCtx,
		sendCancel:    sendCancel,
	}
}

// Issue creates a record, starts its send and appends it to the queue.
//
// Issue never blocks on the network and never fails; a send that could not
// start leaves the record to be resolved by the timeout. A nil sink
// discards the outcome.
func (s *Scheduler) Issue(url string, sink Sink, repeat bool, payload string) {
	if sink == nil {
		sink = discardSink{}
	}

	r := &Record{
		ID:        uuid.NewString(),
		URL:       url,
		Sink:      sink,
		Repeat:    repeat,
		CreatedAt: s.clock.Now(),
	}
	if s.resendPayload {
		r.payload = payload
	}
	r.transport = s.sender.Send(s.sendCtx, url, payload)

	s.queue.Push(r)
}

// Pending returns the number of records waiting for a tick.
func (s *Scheduler) Pending() int {
	return s.queue.Len()
}

// Tick resolves one snapshot of the queue.
//
// Exactly the records queued when Tick starts are examined. Records issued
// or pushed back during the tick land behind them and wait for the next
// tick.
func (s *Scheduler) Tick() TickStats {
	batch := s.queue.Drain()
	stats := TickStats{Processed: len(batch)}

	for _, r := range batch {
		if r == nil {
			continue
		}

		elapsed := s.clock.Now().Sub(r.CreatedAt)
		tr := r.transport

		switch {
		case tr.Ready() && tr.Succeeded():
			stats.Completed++
			s.resolve(r, elapsed, nil)

		case elapsed > s.timeout:
			stats.TimedOut++
			err := ErrTimeout
			if transport.IsUnavailable(tr) {
				err = errors.Join(ErrTimeout, ErrTransportUnavailable)
			}
			s.logger.Warn("request timed out",
				"record_id", r.ID,
				"url", r.URL,
				"elapsed_ms", elapsed.Milliseconds(),
			)
			s.resolve(r, elapsed, err)

		case s.failFast && tr.Ready():
			stats.Failed++
			s.resolve(r, elapsed, statusError(tr))

		default:
			stats.Pending++
			s.queue.Push(r)
		}
	}

	return stats
}

// resolve releases the record's transport, notifies its sink and issues
// the repeat record if one is due. err == nil means the ready branch.
func (s *Scheduler) resolve(r *Record, elapsed time.Duration, err error) {
	body, ok := r.release()
	if !ok {
		return
	}

	outcome := Outcome{
		RecordID: r.ID,
		URL:      r.URL,
		OK:       err == nil,
		Elapsed:  elapsed,
		Err:      err,
	}
	if outcome.OK {
		outcome.Body = body
	}

	s.logger.Debug("record dispatched",
		"record_id", r.ID,
		"url", r.URL,
		"outcome", outcomeLabel(outcome),
		"elapsed_ms", elapsed.Milliseconds(),
	)

	s.notifySafe(r, outcome)

	if r.Repeat {
		s.Issue(r.URL, r.Sink, true, r.payload)
	}
}

// notifySafe calls the sink with panic recovery.
// A panicking sink is logged with a correlation ID and the stack; the tick
// carries on with the next record.
func (s *Scheduler) notifySafe(r *Record, outcome Outcome) {
	defer func() {
		if p := recover(); p != nil {
			correlationID := uuid.NewString()
			s.logger.Error("sink panic",
				"correlation_id", correlationID,
				"record_id", r.ID,
				"url", r.URL,
				"panic", fmt.Sprintf("%v", p),
				"stack", string(debug.Stack()),
			)
		}
	}()
	r.Sink.Notify(outcome)
}

// Start runs the tick loop in a background goroutine.
//
// The loop waits one interval, ticks, and only then arms the next wait, so
// ticks never overlap and a slow tick delays the next one instead of
// piling up. It stops when ctx is cancelled or [Scheduler.Stop] is called.
//
// If ctx is nil, context.Background() is used. Start is idempotent; if
// Stop was called first, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-s.clock.After(s.interval):
				s.Tick()
			}
		}
	}()
}

// Stop halts the loop, waits for the current tick to finish, cancels all
// in-flight sends and releases the transports of records still queued.
// Their sinks are not notified.
//
// Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.sendCancel()

	for _, r := range s.queue.Drain() {
		if r != nil {
			r.release()
		}
	}
}

func statusError(tr transport.Transport) error {
	sr, ok := tr.(transport.StatusReporter)
	if !ok {
		return ErrStatus
	}
	if err := sr.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStatus, err)
	}
	return fmt.Errorf("%w: got %d", ErrStatus, sr.StatusCode())
}

func outcomeLabel(o Outcome) string {
	switch {
	case o.OK:
		return "ok"
	case errors.Is(o.Err, ErrTimeout):
		return "timeout"
	default:
		return "failed"
	}
}
