// internal/events/bus.go
package events

import (
	"sync"
)

// Subscription represents a subscription to lifecycle events
type Subscription struct {
	Ch     chan Event  // Channel to receive events
	Types  []EventType // Event types to filter (nil/empty = all types)
	Target string      // Target identifier
}

// EventStore defines the interface for persisting events
type EventStore interface {
	Save(event *Event) error
	GetPending(target string, types []EventType) ([]*Event, error)
	MarkDelivered(eventID string) error
}

// Bus fans lifecycle events out to subscribers. Publishing never blocks:
// a subscriber that stops draining its channel loses events.
type Bus struct {
	subscribers map[string][]*Subscription // target -> subscriptions
	store       EventStore                 // Optional persistent store
	mu          sync.RWMutex
}

// NewBus creates an event bus. A nil store disables persistence.
func NewBus(store EventStore) *Bus {
	return &Bus{
		subscribers: make(map[string][]*Subscription),
		store:       store,
	}
}

// Subscribe registers interest in events for the given target and types.
// Nil or empty types receives everything.
func (b *Bus) Subscribe(target string, types []EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		Ch:     make(chan Event, 100),
		Types:  types,
		Target: target,
	}
	b.subscribers[target] = append(b.subscribers[target], sub)
	return sub.Ch
}

// Unsubscribe removes a subscription and closes its channel
func (b *Bus) Unsubscribe(target string, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, exists := b.subscribers[target]
	if !exists {
		return
	}
	for i, sub := range subs {
		if sub.Ch == ch {
			close(sub.Ch)
			b.subscribers[target] = append(subs[:i], subs[i+1:]...)
			if len(b.subscribers[target]) == 0 {
				delete(b.subscribers, target)
			}
			return
		}
	}
}

// Publish delivers an event to subscribers of its target and to "all"
// subscribers. An event targeted "all" reaches everyone.
func (b *Bus) Publish(event *Event) {
	if b.store != nil {
		_ = b.store.Save(event)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var targetSubs []*Subscription
	if event.Target == "all" {
		for _, subs := range b.subscribers {
			targetSubs = append(targetSubs, subs...)
		}
	} else {
		targetSubs = append(targetSubs, b.subscribers[event.Target]...)
		targetSubs = append(targetSubs, b.subscribers["all"]...)
	}

	for _, sub := range targetSubs {
		if !matchesTypes(event.Type, sub.Types) {
			continue
		}
		select {
		case sub.Ch <- *event:
		default:
			// Channel full, drop rather than block the publisher.
		}
	}
}

// GetPendingEvents retrieves undelivered events from the store
func (b *Bus) GetPendingEvents(target string, types []EventType) ([]*Event, error) {
	if b.store == nil {
		return nil, nil
	}
	return b.store.GetPending(target, types)
}

// MarkDelivered records that a subscriber has consumed a stored event
func (b *Bus) MarkDelivered(eventID string) error {
	if b.store == nil {
		return nil
	}
	return b.store.MarkDelivered(eventID)
}

func matchesTypes(eventType EventType, types []EventType) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if t == eventType {
			return true
		}
	}
	return false
}
