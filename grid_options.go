package devpoll

import (
	"errors"
	"fmt"
)

// gridConfig holds configuration during command grid construction.
type gridConfig struct {
	urlTemplate     string
	payloadTemplate string
	targetTemplate  string
	dimensions      map[string][]string
	repeat          bool
	handler         func(*Body)
}

// GridOption configures [NewCommandGrid].
type GridOption func(*gridConfig) error

// WithURLTemplate sets the URL template. Required.
//
// Example:
//
//	WithURLTemplate("http://{{.host}}/status.xml")
//
// Returns an error if the template string is empty.
func WithURLTemplate(tmpl string) GridOption {
	return func(cfg *gridConfig) error {
		if tmpl == "" {
			return errors.New("URL template required")
		}
		cfg.urlTemplate = tmpl
		return nil
	}
}

// WithPayloadTemplate sets the request body template.
//
// Example:
//
//	WithPayloadTemplate("ZONE={{.zone}}&CMD=STATUS")
func WithPayloadTemplate(tmpl string) GridOption {
	return func(cfg *gridConfig) error {
		cfg.payloadTemplate = tmpl
		return nil
	}
}

// WithTargetTemplate names each generated target from a template instead
// of the default "base (values)" form.
//
// Example:
//
//	WithTargetTemplate("zone-{{.zone}}")
func WithTargetTemplate(tmpl string) GridOption {
	return func(cfg *gridConfig) error {
		cfg.targetTemplate = tmpl
		return nil
	}
}

// WithDimensions sets the dimension values for cartesian product expansion.
//
// Returns an error if the map is empty, any dimension has no values,
// or any value is an empty string.
func WithDimensions(dims map[string][]string) GridOption {
	return func(cfg *gridConfig) error {
		if len(dims) == 0 {
			return errors.New("at least one dimension required")
		}
		for k, vals := range dims {
			if len(vals) == 0 {
				return fmt.Errorf("dimension '%s' has no values", k)
			}
			for i, v := range vals {
				if v == "" {
					return fmt.Errorf("dimension '%s' contains empty value at index %d", k, i)
				}
			}
		}
		cfg.dimensions = dims
		return nil
	}
}

// WithGridRepeat makes every generated command repeat.
func WithGridRepeat() GridOption {
	return func(cfg *gridConfig) error {
		cfg.repeat = true
		return nil
	}
}

// WithGridHandler adds fn as a handler to every generated command.
//
// Returns an error if fn is nil.
func WithGridHandler(fn func(*Body)) GridOption {
	return func(cfg *gridConfig) error {
		if fn == nil {
			return errors.New("handler cannot be nil")
		}
		cfg.handler = fn
		return nil
	}
}
