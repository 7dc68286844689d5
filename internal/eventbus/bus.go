package eventbus

import "sync"

// Handler receives events published to a Bus. Handlers run synchronously
// on the publisher's goroutine (the session controller's single event
// loop, per spec §5) — a slow handler delays every other subscriber and
// the session itself, so handlers should hand off work rather than block.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a typed publish/subscribe registry. It is safe for concurrent
// Subscribe/Unsubscribe from any goroutine; Publish is expected to be
// called only from the owning session's single event-loop goroutine so
// that subscribers observe events in the order the state machine emitted
// them (spec §5).
type Bus struct {
	mu     sync.Mutex
	subs   []subscription
	nextID uint64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers h and returns a function that removes it. Safe to
// call from any goroutine, including from within a handler during
// Publish (the removal takes effect for subsequent Publish calls only).
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, handler: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers e to every currently subscribed handler, in the order
// they subscribed. The subscriber list is snapshotted under the lock so a
// handler that subscribes or unsubscribes during Publish cannot deadlock
// or corrupt iteration.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	snapshot := make([]subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	for _, s := range snapshot {
		s.handler(e)
	}
}
