// Package bus implements the in-process event bus between the core and
// the gateway.
package bus

import (
	"sync"

	"github.com/taskdeck/taskdeck/internal/domain"
)

// subscriberBuffer bounds each subscriber channel. A subscriber that
// falls this far behind starts dropping events rather than blocking
// publishers.
const subscriberBuffer = 256

// Bus implements domain.EventBus with per-subscriber buffered channels.
type Bus struct {
	subs   map[int]chan domain.Event
	mu     sync.Mutex
	nextID int
}

// New creates a new Bus.
func New() *Bus {
	return &Bus{subs: make(map[int]chan domain.Event)}
}

// Ensure Bus implements domain.EventBus.
var _ domain.EventBus = (*Bus)(nil)

// Publish delivers an event to all current subscribers. Publish never
// blocks; slow subscribers lose events.
func (b *Bus) Publish(event domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel of events and an unsubscribe func. The
// channel is closed on unsubscribe.
func (b *Bus) Subscribe() (<-chan domain.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan domain.Event, subscriberBuffer)
	b.subs[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}
