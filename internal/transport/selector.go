package transport

import (
	"context"
	"log/slog"
)

// Selector chooses the first usable [Mechanism] in preference order.
type Selector struct {
	mechanisms []Mechanism
	logger     *slog.Logger
}

// NewSelector returns a Selector that probes mechanisms in the given order.
// Nil mechanisms are skipped.
func NewSelector(logger *slog.Logger, mechanisms ...Mechanism) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	kept := make([]Mechanism, 0, len(mechanisms))
	for _, m := range mechanisms {
		if m != nil {
			kept = append(kept, m)
		}
	}
	return &Selector{mechanisms: kept, logger: logger}
}

// DefaultSelector prefers [Native] and falls back to [Legacy].
func DefaultSelector(logger *slog.Logger) *Selector {
	return NewSelector(logger, Native(nil), Legacy())
}

// Send opens an asynchronous POST with the first mechanism that is
// available and accepts the request. It never fails: when nothing can send,
// the returned transport is [Unavailable].
func (s *Selector) Send(ctx context.Context, url, payload string) Transport {
	for _, m := range s.mechanisms {
		if !m.Available() {
			continue
		}
		t, err := m.Open(ctx, url, payload)
		if err != nil {
			s.logger.Debug("transport open failed",
				"mechanism", m.Name(),
				"url", url,
				"error", err.Error(),
			)
			continue
		}
		return t
	}

	s.logger.Debug("no transport available", "url", url)
	return Unavailable{}
}

// Names returns the mechanism names in preference order.
func (s *Selector) Names() []string {
	names := make([]string, len(s.mechanisms))
	for i, m := range s.mechanisms {
		names[i] = m.Name()
	}
	return names
}

// Close releases idle connections held by mechanisms that keep any.
func (s *Selector) Close() {
	for _, m := range s.mechanisms {
		if c, ok := m.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
