// Package bus is the in-process topic bus that fans price ticks out to the
// triggers guarding open positions.
package bus

import (
	"context"
	"sync"
)

// TopicPriceTick carries domain.PriceTick payloads.
const TopicPriceTick = "price-tick"

// Handler receives a published payload. Handlers run on the publisher's
// goroutine and should return quickly.
type Handler interface {
	Handle(ctx context.Context, payload any)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, payload any)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, payload any) { f(ctx, payload) }

// Handle identifies one subscription. The zero Handle is never issued.
type Handle uint64

type entry struct {
	handle  Handle
	topic   string
	handler Handler
}

// Bus delivers each publish to the topic's handlers in subscription order.
// Publish iterates over a snapshot, so handlers may subscribe or unsubscribe
// (themselves included) while being invoked; changes apply to the next
// publish.
type Bus struct {
	mu     sync.RWMutex
	next   Handle
	topics map[string][]entry
	index  map[Handle]string
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{
		topics: make(map[string][]entry),
		index:  make(map[Handle]string),
	}
}

// Subscribe registers h on topic and returns its handle.
func (b *Bus) Subscribe(topic string, h Handler) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	e := entry{handle: b.next, topic: topic, handler: h}
	b.topics[topic] = append(b.topics[topic], e)
	b.index[e.handle] = topic
	return e.handle
}

// Unsubscribe removes the subscription. It reports false if the handle was
// unknown or already removed.
func (b *Bus) Unsubscribe(h Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	topic, ok := b.index[h]
	if !ok {
		return false
	}
	delete(b.index, h)

	entries := b.topics[topic]
	for i, e := range entries {
		if e.handle != h {
			continue
		}
		// Copy so that snapshots held by in-flight publishes stay intact.
		kept := make([]entry, 0, len(entries)-1)
		kept = append(kept, entries[:i]...)
		kept = append(kept, entries[i+1:]...)
		if len(kept) == 0 {
			delete(b.topics, topic)
		} else {
			b.topics[topic] = kept
		}
		break
	}
	return true
}

// Publish synchronously invokes every handler subscribed to topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) {
	b.mu.RLock()
	snapshot := b.topics[topic]
	b.mu.RUnlock()

	for _, e := range snapshot {
		e.handler.Handle(ctx, payload)
	}
}

// Len returns the number of handlers on topic.
func (b *Bus) Len(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
