// Package events publishes engine occurrences (collusion flags,
// adversarial-test outcomes) to in-process subscribers. It is the
// decoupled, capped-history pattern the teacher uses for security
// alerts, adapted to this domain: subscribers are plain callbacks rather
// than webhooks, since HTTP delivery is out of scope here.
package events

import (
	"log"
	"sync"
	"time"
)

// Kind distinguishes the occurrences this bus carries.
type Kind string

const (
	KindCollusionFlagged  Kind = "collusion_flagged"
	KindAdversarialResult Kind = "adversarial_result"
	KindValidatorBanned   Kind = "validator_banned"
)

// Event is one published occurrence.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Payload   any
}

// Bus is a mutex-guarded, capped-history publisher. Subscribers are
// invoked synchronously under no lock (the slice is copied first), the
// same discipline as the teacher's AlertManager.EmitAlert.
type Bus struct {
	mu          sync.RWMutex
	subscribers []func(Event)
	history     []Event
	maxHistory  int
}

// New creates a Bus retaining at most maxHistory recent events.
func New(maxHistory int) *Bus {
	if maxHistory <= 0 {
		maxHistory = 1000
	}
	return &Bus{maxHistory: maxHistory}
}

// Subscribe registers a callback invoked for every future Publish.
func (b *Bus) Subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

// Publish records e in history and fans it out to subscribers.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.Lock()
	b.history = append(b.history, e)
	if len(b.history) > b.maxHistory {
		b.history = b.history[len(b.history)-b.maxHistory:]
	}
	subs := make([]func(Event), len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, sub := range subs {
		sub(e)
	}

	log.Printf("[Events] %s", e.Kind)
}

// Recent returns up to limit of the most recently published events,
// newest first.
func (b *Bus) Recent(limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if limit <= 0 || limit > len(b.history) {
		limit = len(b.history)
	}
	start := len(b.history) - limit
	out := make([]Event, limit)
	for i := 0; i < limit; i++ {
		out[i] = b.history[start+limit-1-i]
	}
	return out
}
