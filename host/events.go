package host

import (
	"sync"
)

// Poster runs callbacks on the event loop
type Poster interface {
	Post(fn func()) bool
}

type subscription struct {
	id uint64
	fn func(payload interface{})
}

// Bus is a topic event bus whose handlers run on the event loop.
// Publish may be called from any goroutine.
type Bus struct {
	loop Poster

	mu     sync.Mutex
	nextID uint64
	subs   map[string][]subscription
}

// NewBus creates a bus posting to loop
func NewBus(loop Poster) *Bus {
	return &Bus{loop: loop, subs: make(map[string][]subscription)}
}

// Subscribe implements plugin.EventBus
func (b *Bus) Subscribe(topic string, fn func(payload interface{})) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(topic, id) })
	}
}

func (b *Bus) unsubscribe(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
}

// Publish implements plugin.EventBus. Handlers subscribed when Publish is
// called each get one posted callback.
func (b *Bus) Publish(topic string, payload interface{}) {
	b.mu.Lock()
	subs := append([]subscription(nil), b.subs[topic]...)
	b.mu.Unlock()

	for _, s := range subs {
		fn := s.fn
		b.loop.Post(func() { fn(payload) })
	}
}

// Subscribers returns how many handlers topic has
func (b *Bus) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}
