// Package bus is a fan-out pub/sub for change notifications, keyed by topic.
package bus

import "sync"

// Topics not tied to one browser.
const (
	TopicAreas = "areas"
)

// Event describes a change. Topic is a browser id for identity changes or
// TopicAreas for record mutations.
type Event struct {
	Topic  string
	Action string // "signed-in", "signed-out", "created", "updated", "deleted"
	ID     string // session id or record id; empty when signed out
}

// Bus is a simple fan-out pub/sub.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[string]map[chan Event]struct{})}
}

// Publish sends an event to every subscriber of its topic (non-blocking).
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[e.Topic] {
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel receiving events for topic.
func (b *Bus) Subscribe(topic string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	set, ok := b.subs[topic]
	if !ok {
		set = make(map[chan Event]struct{})
		b.subs[topic] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(topic string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[topic]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(b.subs, topic)
	}
	close(ch)
}

// Subscribers returns the number of subscribers on topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
