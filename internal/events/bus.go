package events

import (
	"sync"
)

const defaultBufSize = 256

// Publisher is what the dispatcher and coordinator need from a bus.
type Publisher interface {
	Publish(event Event)
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// EventBus is a channel-based pub-sub bus. Events are routed by their Topic.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[string][]chan Event // topic -> subscriber channels
	allSubs []chan Event            // channels receiving every topic
	closed  bool
}

var _ Publisher = (*EventBus)(nil)

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[string][]chan Event),
	}
}

// Subscribe returns a channel receiving events of one topic.
// bufSize defaults to 256 if <= 0. Subscribing to a closed bus yields a closed channel.
func (b *EventBus) Subscribe(topic string, bufSize int) <-chan Event {
	ch := newChan(bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	// Late subscribers see an already-finished stream
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[topic] = append(b.subs[topic], ch)
	return ch
}

// SubscribeAll returns a channel receiving events of every topic.
func (b *EventBus) SubscribeAll(bufSize int) <-chan Event {
	ch := newChan(bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch
	}
	b.allSubs = append(b.allSubs, ch)
	return ch
}

// Publish delivers event to its topic's subscribers and to SubscribeAll channels.
// Never blocks: a subscriber whose buffer is full misses the event.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	// A closed bus swallows late events from still-running dispatches
	if b.closed {
		return
	}

	// Topic subscribers first
	for _, ch := range b.subs[event.Topic()] {
		offer(ch, event)
	}

	// Then the all-topic subscribers (the live view)
	for _, ch := range b.allSubs {
		offer(ch, event)
	}
}

// Close closes the bus and every subscriber channel. Idempotent.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	// Close topic subscribers
	for _, channels := range b.subs {
		for _, ch := range channels {
			close(ch)
		}
	}

	// Close all-topic subscribers
	for _, ch := range b.allSubs {
		close(ch)
	}
}

func newChan(bufSize int) chan Event {
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}
	return make(chan Event, bufSize)
}

// offer sends without blocking.
func offer(ch chan Event, event Event) {
	select {
	case ch <- event:
	default:
		// Subscriber buffer full, drop the event for this subscriber
	}
}
