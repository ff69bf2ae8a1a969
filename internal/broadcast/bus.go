// Package broadcast is a small in-process publish/subscribe bus used to
// invalidate views after tracer mutations.
package broadcast

import (
	"sync"

	"github.com/franz/xeenaps-tracer/internal/metrics"
)

// Topic names an event kind.
type Topic string

const (
	TracerUpdated Topic = "tracer.updated"
	TracerDeleted Topic = "tracer.deleted"
	TodoUpdated   Topic = "todo.updated"
	TodoDeleted   Topic = "todo.deleted"
)

// Event carries the mutated entity, or its id for deletions.
type Event struct {
	Topic   Topic
	ID      string
	Payload any
}

// Handler receives events. It runs on the publisher's goroutine and must
// not block.
type Handler func(Event)

// Bus fans events out to subscribers. The zero value is ready to use.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Topic]map[int]Handler
}

// New creates an empty bus
func New() *Bus {
	return &Bus{}
}

// Subscribe registers h for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		b.subs = make(map[Topic]map[int]Handler)
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[topic][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic], id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to every current subscriber of its topic.
// A nil bus drops the event.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	metrics.Broadcasts.WithLabelValues(string(ev.Topic)).Inc()

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[ev.Topic]))
	for _, h := range b.subs[ev.Topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
