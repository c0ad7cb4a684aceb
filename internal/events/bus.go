package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// subscriberBuffer is the per-subscription channel capacity. Events beyond
// this buffer are dropped rather than blocking the publisher.
const subscriberBuffer = 100

// Handler processes a delivered event.
type Handler func(event *Event)

// Subscription identifies one registered handler so it can be removed with
// Unsubscribe when the subscriber goes away.
type Subscription struct {
	eventType EventType
	ch        chan *Event
}

// Bus is an in-process publish/subscribe channel for system events.
// Publishing never blocks: each subscription has a bounded buffer drained by
// its own goroutine, and events are dropped (with a warning) when a
// subscriber falls too far behind. Per-subscription delivery order matches
// publish order.
//
// The bus is an explicit, injectable component so tests can construct
// isolated buses per test case.
type Bus struct {
	mu     sync.RWMutex
	subs   map[EventType][]*Subscription
	log    zerolog.Logger
	wg     sync.WaitGroup
	closed bool
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[EventType][]*Subscription),
		log:  log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for an event type. The handler runs on a
// dedicated goroutine per subscription; it must not be assumed to run on the
// publisher's goroutine. The returned subscription is the handle for
// Unsubscribe.
func (b *Bus) Subscribe(eventType EventType, handler Handler) *Subscription {
	sub := &Subscription{eventType: eventType, ch: make(chan *Event, subscriberBuffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return sub
	}
	b.subs[eventType] = append(b.subs[eventType], sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for event := range sub.ch {
			handler(event)
		}
	}()
	return sub
}

// Unsubscribe removes a subscription and stops its drain goroutine once the
// buffered events are handled. Safe to call more than once and after Close.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	subs := b.subs[sub.eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[sub.eventType] = append(subs[:i], subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// Publish delivers an event to all subscriptions for its type.
// Non-blocking: events are dropped when a subscriber's buffer is full.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs[event.Type] {
		select {
		case sub.ch <- event:
		default:
			b.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Subscriber buffer full, dropping event")
		}
	}
}

// Emit constructs an event and publishes it.
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	b.Publish(&Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	})
}

// Close stops delivery and waits for in-flight handlers to drain.
// Intended for tests and graceful shutdown.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			close(sub.ch)
		}
	}
	b.mu.Unlock()

	b.wg.Wait()
}
