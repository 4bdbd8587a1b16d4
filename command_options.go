package devpoll

import "errors"

// commandConfig holds mutable state during command construction.
type commandConfig struct {
	target  string
	payload string
	repeat  bool
	handler func(*Body)
}

// CommandOption configures a [Command] during construction.
//
// Built-in options: [WithTarget], [WithPayload], [WithRepeat], [WithHandler].
type CommandOption func(*commandConfig) error

// WithTarget renders the command's responses into the named target.
//
// Returns an error if name is empty.
func WithTarget(name string) CommandOption {
	return func(cfg *commandConfig) error {
		if name == "" {
			return errors.New("target name cannot be empty")
		}
		cfg.target = name
		return nil
	}
}

// WithPayload sets the request body.
//
// Repeats of the command are sent without it unless the queue was built
// with [WithResendPayload].
func WithPayload(payload string) CommandOption {
	return func(cfg *commandConfig) error {
		cfg.payload = payload
		return nil
	}
}

// WithRepeat re-issues the command after every result, success or failure.
func WithRepeat() CommandOption {
	return func(cfg *commandConfig) error {
		cfg.repeat = true
		return nil
	}
}

// WithHandler calls fn with each response body, or nil on failure.
//
// Returns an error if fn is nil.
func WithHandler(fn func(*Body)) CommandOption {
	return func(cfg *commandConfig) error {
		if fn == nil {
			return errors.New("handler cannot be nil")
		}
		cfg.handler = fn
		return nil
	}
}
