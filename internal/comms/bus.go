// internal/comms/bus.go
package comms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/TEAMTWIN/internal/skb"
)

// ErrUnknownRecipient is returned when a message names an unregistered agent
var ErrUnknownRecipient = errors.New("unknown recipient")

// defaultInboxSize buffers enough protocol traffic that senders never block
// under normal negotiation fan-out
const defaultInboxSize = 64

// Bus routes messages between registered agents over per-agent inboxes.
// Delivery order is FIFO per sender; every delivered message lands in the
// knowledge base audit log.
type Bus struct {
	mu      sync.RWMutex
	inboxes map[string]chan Message
	kb      *skb.SKB
}

// NewBus creates a bus. The knowledge base may be nil in tests that do not
// care about auditing.
func NewBus(kb *skb.SKB) *Bus {
	return &Bus{
		inboxes: make(map[string]chan Message),
		kb:      kb,
	}
}

// Register creates the inbox for an agent id. Re-registering an id keeps
// the existing inbox.
func (b *Bus) Register(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.inboxes[agentID]; !ok {
		b.inboxes[agentID] = make(chan Message, defaultInboxSize)
	}
}

// Unregister removes an agent's inbox. In-flight messages are dropped.
func (b *Bus) Unregister(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inboxes, agentID)
}

// Send delivers one message to its recipient's inbox
func (b *Bus) Send(msg Message) error {
	b.mu.RLock()
	inbox, ok := b.inboxes[msg.To]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("agent %s: %w", msg.To, ErrUnknownRecipient)
	}

	inbox <- msg
	b.audit(msg)
	return nil
}

// Broadcast delivers the message to every registered agent except the
// sender. Individual failures do not stop the remaining deliveries.
func (b *Bus) Broadcast(msg Message) error {
	b.mu.RLock()
	ids := make([]string, 0, len(b.inboxes))
	for id := range b.inboxes {
		if id != msg.From {
			ids = append(ids, id)
		}
	}
	b.mu.RUnlock()

	var errs []error
	for _, id := range ids {
		m := msg
		m.To = id
		if err := b.Send(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recv blocks until a message arrives for the agent or the context ends
func (b *Bus) Recv(ctx context.Context, agentID string) (Message, error) {
	b.mu.RLock()
	inbox, ok := b.inboxes[agentID]
	b.mu.RUnlock()
	if !ok {
		return Message{}, fmt.Errorf("agent %s: %w", agentID, ErrUnknownRecipient)
	}

	select {
	case msg := <-inbox:
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// TryRecv returns the next queued message without blocking
func (b *Bus) TryRecv(agentID string) (Message, bool) {
	b.mu.RLock()
	inbox, ok := b.inboxes[agentID]
	b.mu.RUnlock()
	if !ok {
		return Message{}, false
	}

	select {
	case msg := <-inbox:
		return msg, true
	default:
		return Message{}, false
	}
}

func (b *Bus) audit(msg Message) {
	if b.kb == nil {
		return
	}
	b.kb.AppendMessage(skb.AuditEntry{
		MessageID:  msg.ID,
		FromAgent:  msg.From,
		ToAgent:    msg.To,
		Type:       string(msg.Type),
		TaskID:     msg.TaskID,
		Payload:    msg.Payload,
		SentAt:     msg.SentAt,
		ReceivedAt: time.Now(),
	})
}
