package events

import (
	"log/slog"
	"slices"
	"sync"
)

// Handler receives a published payload.
type Handler func(topic string, payload any)

// ListenerID identifies a registered listener.
type ListenerID uint64

type listener struct {
	id      ListenerID
	handler Handler
}

// Bus is the local listener registry.
type Bus struct {
	mu     sync.Mutex
	nextID ListenerID
	topics map[string][]listener
	logger *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		topics: make(map[string][]listener),
		logger: logger,
	}
}

// On appends a listener to topic.
func (b *Bus) On(topic string, handler Handler) ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.topics[topic] = append(b.topics[topic], listener{id: id, handler: handler})
	return id
}

// Once appends a listener that removes itself before its first call.
func (b *Bus) Once(topic string, handler Handler) ListenerID {
	var (
		once sync.Once
		id   ListenerID
	)
	b.mu.Lock()
	b.nextID++
	id = b.nextID
	wrapped := func(t string, payload any) {
		fire := false
		once.Do(func() {
			fire = b.Off(t, id)
		})
		if fire {
			handler(t, payload)
		}
	}
	b.topics[topic] = append(b.topics[topic], listener{id: id, handler: wrapped})
	b.mu.Unlock()
	return id
}

// Off removes a listener. It reports whether the listener was registered.
func (b *Bus) Off(topic string, id ListenerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.topics[topic]
	i := slices.IndexFunc(list, func(l listener) bool { return l.id == id })
	if i < 0 {
		return false
	}
	list = slices.Delete(slices.Clone(list), i, i+1)
	if len(list) == 0 {
		delete(b.topics, topic)
	} else {
		b.topics[topic] = list
	}
	return true
}

// OffAll removes every listener of topic.
func (b *Bus) OffAll(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.topics, topic)
}

// Publish calls the listeners registered on topic in registration order. A
// panicking listener is logged and does not stop the others.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.Lock()
	list := b.topics[topic]
	b.mu.Unlock()

	for _, l := range list {
		b.call(topic, l, payload)
	}
}

func (b *Bus) call(topic string, l listener, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("listener panicked", "topic", topic, "listener", l.id, "panic", r)
		}
	}()
	l.handler(topic, payload)
}

// Count returns the number of listeners on topic.
func (b *Bus) Count(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

// Topics returns the topics with at least one listener, sorted.
func (b *Bus) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.topics))
	for t := range b.topics {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
