// internal/events/types.go
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of lifecycle event
type EventType string

const (
	EventTaskCreated       EventType = "task_created"
	EventTaskAssigned      EventType = "task_assigned"
	EventTaskStatusChanged EventType = "task_status_changed"
	EventAgentUpdated      EventType = "agent_updated"
)

// Event is one lifecycle notification. Source names the component that
// emitted it; Target is a subscriber id or "all" for broadcast.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Target    string                 `json:"target"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewEvent creates an event with a generated id and timestamp
func NewEvent(eventType EventType, source, target string, payload map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Target:    target,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// AllEventTypes returns all defined event types
func AllEventTypes() []EventType {
	return []EventType{
		EventTaskCreated,
		EventTaskAssigned,
		EventTaskStatusChanged,
		EventAgentUpdated,
	}
}
