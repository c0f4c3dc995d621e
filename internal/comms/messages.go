// internal/comms/messages.go
package comms

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageType identifies the protocol role of a message
type MessageType string

const (
	TypeTaskConsultation     MessageType = "task_consultation"
	TypeConsultationResponse MessageType = "consultation_response"
	TypeNegotiationTurn      MessageType = "negotiation_turn"
	TypeConsensusProposal    MessageType = "consensus_proposal"
	TypeConsensusAck         MessageType = "consensus_ack"
	TypeGeneral              MessageType = "general"
)

// Message is the envelope every agent exchange travels in
type Message struct {
	ID      string          `json:"message_id"`
	From    string          `json:"from_agent"`
	To      string          `json:"to_agent"`
	Type    MessageType     `json:"type"`
	TaskID  string          `json:"task_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
}

// NewMessage builds an envelope with a fresh id and send timestamp
func NewMessage(from, to string, mt MessageType, taskID string, payload interface{}) (Message, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Message{}, err
		}
		raw = b
	}
	return Message{
		ID:      uuid.New().String(),
		From:    from,
		To:      to,
		Type:    mt,
		TaskID:  taskID,
		Payload: raw,
		SentAt:  time.Now(),
	}, nil
}
