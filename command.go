package devpoll

import (
	"errors"
	"net/url"
)

// Command is a command issued when the [Queue] starts, typically a periodic
// status read with [WithRepeat].
//
// Command is immutable after creation via [NewCommand].
type Command struct {
	url     string
	target  string
	payload string
	repeat  bool
	handler func(*Body)
}

// URL returns the command destination.
func (c Command) URL() string {
	return c.url
}

// Target returns the render target name, or "" if the command only has a
// handler.
func (c Command) Target() string {
	return c.target
}

// Payload returns the request body sent with the command.
func (c Command) Payload() string {
	return c.payload
}

// Repeat reports whether the command is re-issued after each result.
func (c Command) Repeat() bool {
	return c.repeat
}

// NewCommand creates a [Command] for rawURL.
//
// The URL must be absolute with an http or https scheme. At least one of
// [WithTarget] and [WithHandler] is required; with both, the target is
// rendered first.
//
// Example:
//
//	cmd, err := devpoll.NewCommand("http://192.168.1.10/status.xml",
//	    devpoll.WithTarget("status"),
//	    devpoll.WithRepeat(),
//	)
func NewCommand(rawURL string, opts ...CommandOption) (Command, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return Command{}, errors.New("invalid URL: " + err.Error())
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return Command{}, errors.New("URL must have a scheme (http:// or https://)")
	}

	cfg := &commandConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Command{}, err
		}
	}

	if cfg.target == "" && cfg.handler == nil {
		return Command{}, errors.New("command needs a target or a handler")
	}

	return Command{
		url:     rawURL,
		target:  cfg.target,
		payload: cfg.payload,
		repeat:  cfg.repeat,
		handler: cfg.handler,
	}, nil
}

// sink builds the command's sink against q's renderer.
func (c Command) sink(q *Queue) Sink {
	var sinks multiSink
	if c.target != "" {
		sinks = append(sinks, q.Target(c.target))
	}
	if c.handler != nil {
		sinks = append(sinks, Func(c.handler))
	}
	if len(sinks) == 1 {
		return sinks[0]
	}
	return sinks
}
