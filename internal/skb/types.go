// internal/skb/types.go
package skb

import (
	"errors"
	"time"
)

// Sentinel errors surfaced by the knowledge base
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Role of a roster member
type Role string

const (
	RoleManager Role = "manager"
	RoleWorker  Role = "worker"
)

// AgentInfo is the directory entry for one agent. The knowledge base owns
// ids and display data only, never agent objects.
type AgentInfo struct {
	ID           string    `json:"agent_id"`
	PersonName   string    `json:"person_name"`
	Role         Role      `json:"role"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Capabilities is the authoritative skill declaration for one agent
type Capabilities struct {
	TechnicalSkills    map[string]float64 `json:"technical_skills"`
	PreferredTaskTypes []string           `json:"preferred_task_types"`
	CommunicationStyle string             `json:"communication_style"`
	DecisionStyle      string             `json:"decision_style"`
}

// Clone returns a deep copy of the capabilities
func (c Capabilities) Clone() Capabilities {
	out := c
	out.TechnicalSkills = make(map[string]float64, len(c.TechnicalSkills))
	for k, v := range c.TechnicalSkills {
		out.TechnicalSkills[k] = v
	}
	out.PreferredTaskTypes = append([]string(nil), c.PreferredTaskTypes...)
	return out
}

// AgentContext is the live workload state of one agent
type AgentContext struct {
	Utilization float64   `json:"utilization"`  // [0,1]
	StressLevel float64   `json:"stress_level"` // [0,1]
	IsAvailable bool      `json:"is_available"`
	LastActive  time.Time `json:"last_active"`
}

// Assignment is the durable record that a task is owned by an agent.
// At most one exists per task.
type Assignment struct {
	TaskID     string    `json:"task_id"`
	AgentID    string    `json:"agent_id"`
	AssignedAt time.Time `json:"assigned_at"`
	Reason     string    `json:"reason"`
}

// AuditEntry records one delivered protocol message
type AuditEntry struct {
	MessageID  string    `json:"message_id"`
	FromAgent  string    `json:"from_agent"`
	ToAgent    string    `json:"to_agent"`
	Type       string    `json:"type"`
	TaskID     string    `json:"task_id,omitempty"`
	Payload    []byte    `json:"payload,omitempty"`
	SentAt     time.Time `json:"sent_at"`
	ReceivedAt time.Time `json:"received_at"`
}

// Clamp01 clamps v into [0,1]
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
