package store

import (
	"sync"
)

// MemoryStore is an in-memory implementation of [Store].
//
// Targets are keyed by name, with new writes replacing previous content.
// Alerts are kept in a ring of the last 100.
//
// Subscribers receive updates via buffered channels (buffer size 100). Updates
// are sent non-blocking; if a subscriber's buffer is full, the update is dropped
// for that subscriber to prevent blocking the scheduler.
type MemoryStore struct {
	mu      sync.RWMutex
	targets map[string]Target
	alerts  []Alert

	subMu       sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		targets:     make(map[string]Target),
		subscribers: make(map[chan Event]struct{}),
	}
}

// Write stores t under t.Name and notifies all subscribers.
func (m *MemoryStore) Write(t Target) {
	m.mu.Lock()
	m.targets[t.Name] = t
	m.mu.Unlock()

	m.notifySubscribers(Event{Kind: KindTarget, Target: &t})
}

// Raise appends a to the alert ring and notifies all subscribers.
func (m *MemoryStore) Raise(a Alert) {
	m.mu.Lock()
	m.alerts = append(m.alerts, a)
	if over := len(m.alerts) - maxAlerts; over > 0 {
		m.alerts = append([]Alert(nil), m.alerts[over:]...)
	}
	m.mu.Unlock()

	m.notifySubscribers(Event{Kind: KindAlert, Alert: &a})
}

// Get returns the named target.
func (m *MemoryStore) Get(name string) (Target, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.targets[name]
	return t, ok
}

// GetAll returns a snapshot of all targets sorted by name.
func (m *MemoryStore) GetAll() []Target {
	m.mu.RLock()
	targets := make([]Target, 0, len(m.targets))
	for _, t := range m.targets {
		targets = append(targets, t)
	}
	m.mu.RUnlock()

	sortTargets(targets)
	return targets
}

// Alerts returns a copy of the kept alerts, oldest first.
func (m *MemoryStore) Alerts() []Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make([]Alert, len(m.alerts))
	copy(cp, m.alerts)
	return cp
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Event) {
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

// notifySubscribers sends the event to all active subscribers without
// blocking.
func (m *MemoryStore) notifySubscribers(e Event) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- e:
		default:
			// subscriber is slow, drop the message
		}
	}
}
