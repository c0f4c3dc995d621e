// internal/nats/bridge.go
package nats

import (
	"context"
	"log"

	"github.com/TEAMTWIN/internal/events"
)

// Bridge relays lifecycle events from the in-process bus onto NATS
// subjects so out-of-process collaborators can observe the system.
// Delivery is fire-and-forget; the core never depends on a subscriber.
type Bridge struct {
	client *Client
	bus    *events.Bus
}

// NewBridge wires a connected client to the event bus
func NewBridge(client *Client, bus *events.Bus) *Bridge {
	return &Bridge{client: client, bus: bus}
}

// subjectFor maps event types onto their wire subjects
func subjectFor(et events.EventType) string {
	switch et {
	case events.EventTaskCreated:
		return SubjectTaskCreated
	case events.EventTaskAssigned:
		return SubjectTaskAssigned
	case events.EventTaskStatusChanged:
		return SubjectTaskStatus
	case events.EventAgentUpdated:
		return SubjectAgentUpdated
	default:
		return SubjectSystemBroadcast
	}
}

// Run subscribes to every lifecycle event and relays until ctx ends
func (b *Bridge) Run(ctx context.Context) {
	ch := b.bus.Subscribe("all", nil)
	defer b.bus.Unsubscribe("all", ch)

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			b.relay(&e)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bridge) relay(e *events.Event) {
	envelope := EventEnvelope{
		EventID:   e.ID,
		Type:      string(e.Type),
		Source:    e.Source,
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt,
	}
	if err := b.client.PublishJSON(subjectFor(e.Type), envelope); err != nil {
		log.Printf("[Bridge] relay of %s failed: %v", e.Type, err)
	}
}
