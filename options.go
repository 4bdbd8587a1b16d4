package devpoll

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jpalmerr/devpoll/internal/clock"
	"github.com/jpalmerr/devpoll/internal/transport"
)

// queueConfig holds mutable state during Queue construction.
type queueConfig struct {
	commands        []Command
	pollInterval    time.Duration
	timeout         time.Duration
	port            int
	resendPayload   bool
	failFast        bool
	logger          *slog.Logger
	httpClient      *http.Client
	disableNative   bool
	disableLegacy   bool
	redis           *RedisConfig
	renderer        Renderer
	resultCallbacks []func(Result)

	// test seams
	clock      clock.Clock
	mechanisms []transport.Mechanism
}

// RedisConfig selects the Redis target store. See [WithRedis].
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Prefix is prepended to every key and channel. Defaults to "devpoll:".
	Prefix string
}

// Option is a function that configures a [Queue] during construction.
//
// Options return an error if validation fails.
type Option func(*queueConfig) error

// WithCommand adds a [Command] issued when the queue starts.
//
// Can be called multiple times.
func WithCommand(c Command) Option {
	return func(cfg *queueConfig) error {
		cfg.commands = append(cfg.commands, c)
		return nil
	}
}

// WithCommands adds several commands. Equivalent to calling [WithCommand]
// for each.
func WithCommands(commands ...Command) Option {
	return func(cfg *queueConfig) error {
		cfg.commands = append(cfg.commands, commands...)
		return nil
	}
}

// WithPollInterval sets the pause between the end of one tick and the
// start of the next. Defaults to 10ms.
//
// Returns an error if the duration is zero or negative.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *queueConfig) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.pollInterval = d
		return nil
	}
}

// WithTimeout sets how long a command may stay unanswered before its sink
// is notified of failure. Defaults to 30 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) Option {
	return func(cfg *queueConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithPort serves the target and command API on the given port while the
// queue runs. Port 0, the default, disables the API.
//
// Returns an error if the port is outside 0-65535.
func WithPort(port int) Option {
	return func(cfg *queueConfig) error {
		if port < 0 || port > 65535 {
			return errors.New("port must be between 0 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithResendPayload keeps each command's payload and sends it again on
// every repeat. By default repeats go out with an empty body.
func WithResendPayload() Option {
	return func(cfg *queueConfig) error {
		cfg.resendPayload = true
		return nil
	}
}

// WithFailFast resolves a command as soon as its request finishes with a
// status other than 200, reporting [ErrStatus]. By default such commands
// wait out the timeout.
func WithFailFast() Option {
	return func(cfg *queueConfig) error {
		cfg.failFast = true
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *queueConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithHTTPClient sets the client used by the native transport. The legacy
// transport always uses its own one-shot client.
//
// Returns an error if the client is nil.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *queueConfig) error {
		if c == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = c
		return nil
	}
}

// WithoutNative disables the pooled native transport.
func WithoutNative() Option {
	return func(cfg *queueConfig) error {
		cfg.disableNative = true
		return nil
	}
}

// WithoutLegacy disables the one-shot legacy transport.
func WithoutLegacy() Option {
	return func(cfg *queueConfig) error {
		cfg.disableLegacy = true
		return nil
	}
}

// WithRedis keeps targets and alerts in Redis instead of memory, so other
// processes can read them.
//
// Returns an error if the address is empty.
func WithRedis(rc RedisConfig) Option {
	return func(cfg *queueConfig) error {
		if rc.Addr == "" {
			return errors.New("redis address cannot be empty")
		}
		cfg.redis = &rc
		return nil
	}
}

// WithRenderer routes [Queue.Target] sinks to r instead of the target
// store. The API server still serves the store.
//
// Returns an error if r is nil.
func WithRenderer(r Renderer) Option {
	return func(cfg *queueConfig) error {
		if r == nil {
			return errors.New("renderer cannot be nil")
		}
		cfg.renderer = r
		return nil
	}
}

// WithResultCallback registers a function called with every result, after
// the command's own sink.
//
// Callbacks run on the tick goroutine in registration order and must not
// block. Panics are recovered and logged.
//
// Nil callbacks are silently ignored.
func WithResultCallback(cb func(Result)) Option {
	return func(cfg *queueConfig) error {
		if cb == nil {
			return nil
		}
		cfg.resultCallbacks = append(cfg.resultCallbacks, cb)
		return nil
	}
}

func withClock(c clock.Clock) Option {
	return func(cfg *queueConfig) error {
		cfg.clock = c
		return nil
	}
}

// withMechanisms replaces the HTTP transports.
func withMechanisms(m ...transport.Mechanism) Option {
	return func(cfg *queueConfig) error {
		cfg.mechanisms = m
		return nil
	}
}
