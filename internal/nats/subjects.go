// internal/nats/subjects.go
package nats

import "time"

// Subjects the bridge publishes lifecycle traffic on
const (
	// SubjectTaskCreated carries new task announcements
	SubjectTaskCreated = "task.created"

	// SubjectTaskAssigned carries finalized assignments
	SubjectTaskAssigned = "task.assigned"

	// SubjectTaskStatus carries lifecycle transitions
	SubjectTaskStatus = "task.status"

	// SubjectAgentUpdated carries directory and capability changes
	SubjectAgentUpdated = "agent.updated"

	// SubjectSystemBroadcast is used for system-wide announcements
	SubjectSystemBroadcast = "system.broadcast"

	// SubjectTaskSubmit is the inbound subject external collaborators use
	// to hand a task to the core for creation and distribution
	SubjectTaskSubmit = "task.submit"
)

// EventEnvelope is the wire form of one lifecycle event
type EventEnvelope struct {
	EventID   string                 `json:"event_id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}
