package store

import (
	"sort"
	"time"
)

// maxAlerts bounds how many alerts a store keeps.
const maxAlerts = 100

// subscriberBuffer is the channel buffer handed to each subscriber.
const subscriberBuffer = 100

// Event kinds.
const (
	KindTarget = "target"
	KindAlert  = "alert"
)

// Target is the latest content written to one named render target.
type Target struct {
	// Name identifies the target.
	Name string `json:"name"`

	// Content is the raw response text of the command that wrote it.
	Content string `json:"content"`

	// URL is the command destination that produced the content.
	URL string `json:"url"`

	// UpdatedAt is when the content was written.
	UpdatedAt time.Time `json:"updated_at"`
}

// Alert is a user-visible failure raised for a target.
type Alert struct {
	// Target is the name of the target whose command failed.
	Target string `json:"target"`

	// URL is the command destination.
	URL string `json:"url"`

	// Message describes the failure.
	Message string `json:"message"`

	// RaisedAt is when the alert was raised.
	RaisedAt time.Time `json:"raised_at"`
}

// Event is one change pushed to subscribers. Exactly one of Target and
// Alert is set, matching Kind.
type Event struct {
	Kind   string  `json:"kind"`
	Target *Target `json:"target,omitempty"`
	Alert  *Alert  `json:"alert,omitempty"`
}

// Store defines storage and subscription for targets and alerts.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Write replaces the content of a target and notifies subscribers.
	Write(t Target)

	// Raise records an alert and notifies subscribers.
	Raise(a Alert)

	// Get returns the named target.
	Get(name string) (Target, bool)

	// GetAll returns every target sorted by name.
	GetAll() []Target

	// Alerts returns the most recent alerts, oldest first.
	Alerts() []Alert

	// Subscribe returns a channel that receives every subsequent event.
	// Caller must call Unsubscribe when done.
	Subscribe() <-chan Event

	// Unsubscribe removes a subscription and closes its channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Event)
}

func sortTargets(targets []Target) {
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].Name < targets[j].Name
	})
}
