// Package events carries change notifications from the core components to
// subscribers such as the websocket stream.
package events

import (
	"sync"
	"time"
)

// Event types
const (
	TemplateSaved     = "template.saved"
	TemplateDeleted   = "template.deleted"
	TemplateActivated = "template.activated"
	ThresholdsSaved   = "thresholds.saved"
	ThresholdsApplied = "thresholds.applied"
	ProjectCreated    = "project.created"
	ProjectSaved      = "project.saved"
	ProjectDeleted    = "project.deleted"
	DataImported      = "data.imported"
	DataCleared       = "data.cleared"
	StoreQuotaWarning = "store.quota_warning"
)

// Event describes one change
type Event struct {
	Type string    `json:"type"`
	ID   string    `json:"id,omitempty"`
	Data any       `json:"data,omitempty"`
	Time time.Time `json:"time"`
}

// Notifier receives change events
type Notifier interface {
	Notify(Event)
}

// Nop discards every event
type Nop struct{}

// Notify implements Notifier
func (Nop) Notify(Event) {}

// Bus fans events out to subscribers. Slow subscribers drop events rather
// than block the publisher.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Notify publishes an event to every subscriber
func (b *Bus) Notify(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active subscribers
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
