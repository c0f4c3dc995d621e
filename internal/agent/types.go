// internal/agent/types.go
package agent

import (
	"github.com/TEAMTWIN/internal/task"
)

// Position is an agent's stance in one negotiation round
type Position string

const (
	PositionClaim           Position = "claim"
	PositionDefer           Position = "defer"
	PositionReluctantAccept Position = "reluctant_accept"
)

// Assessment is a worker's Phase 1 verdict for one task
type Assessment struct {
	AgentID       string   `json:"agent_id"`
	TaskID        string   `json:"task_id"`
	CanHandle     bool     `json:"can_handle"`
	Confidence    float64  `json:"confidence"`
	EstimatedTime float64  `json:"estimated_time"`
	Concerns      []string `json:"concerns,omitempty"`
	Rationale     string   `json:"rationale"`
	Utilization   float64  `json:"utilization"`
}

// Turn is one agent's position statement in one Phase 2 round
type Turn struct {
	AgentID         string   `json:"agent_id"`
	TaskID          string   `json:"task_id"`
	Round           int      `json:"round"`
	Position        Position `json:"position"`
	DeferredTo      string   `json:"deferred_to,omitempty"`
	SelfConfidence  float64  `json:"self_confidence"`
	SelfUtilization float64  `json:"self_utilization"`
	Rationale       string   `json:"rationale_text"`
}

// consultationRequest is the payload of a task_consultation message
type consultationRequest struct {
	Task *task.Task `json:"task"`
}

// turnRequest is the payload the manager sends each round of Phase 2.
// Round 1 carries the viable assessments as the seed; later rounds also
// carry the prior round's turns.
type turnRequest struct {
	Round       int          `json:"round"`
	Assessments []Assessment `json:"assessments"`
	PriorTurns  []Turn       `json:"prior_turns,omitempty"`
}

// consensusProposal announces the decided assignee to the winner
type consensusProposal struct {
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`
	Reason  string `json:"reason"`
}

// consensusAck acknowledges a proposal
type consensusAck struct {
	TaskID   string `json:"task_id"`
	AgentID  string `json:"agent_id"`
	Accepted bool   `json:"accepted"`
}

// Concern strings attached to assessments
const (
	ConcernLowSkillMatch  = "low_skill_match"
	ConcernOverloaded     = "overloaded"
	ConcernStressed       = "stressed"
	ConcernUnfamiliarType = "unfamiliar_type"
	ConcernNoResponse     = "no_response"
	ConcernUnreachable    = "unreachable"
)
