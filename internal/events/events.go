// Package events fans out coordinator round events to in-process subscribers.
package events

import (
	"sync"
	"time"
)

// Type names a round event.
type Type string

const (
	RoundStarted      Type = "round_started"
	UpdateAccepted    Type = "update_accepted"
	RoundClosed       Type = "round_closed"
	RoundEmpty        Type = "round_empty"
	AggregationFailed Type = "aggregation_failed"
	RoundAggregated   Type = "round_aggregated"
	ModelPublished    Type = "model_published"
	CoordinatorHalted Type = "coordinator_halted"
)

// Event is one round lifecycle notification.
type Event struct {
	Type     Type      `json:"type"`
	Round    uint64    `json:"round"`
	Time     time.Time `json:"time"`
	ClientID string    `json:"clientId,omitempty"`
	Updates  int       `json:"updates,omitempty"` // Updates is the update count relevant to the event
	Hash     string    `json:"hash,omitempty"`    // Hash is the model hash for aggregated and published events
	Message  string    `json:"message,omitempty"`
}

// Bus delivers events to subscribers without blocking the publisher.
// A subscriber whose buffer is full misses events.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size.
// The returned cancel function unregisters it and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}

	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers e to every subscriber with room. A nil bus drops events.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}

	if e.Time.IsZero() {
		e.Time = time.Now()
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

// Subscribers returns the number of live subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}

// Close closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}

	b.closed = true
}
