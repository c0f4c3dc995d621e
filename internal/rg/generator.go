// internal/rg/generator.go
package rg

import "context"

// Status reports how a generation was produced
type Status string

const (
	// StatusOK means the configured backend produced the text
	StatusOK Status = "ok"
	// StatusFallback means deterministic template text was substituted
	StatusFallback Status = "fallback"
	// StatusError means no usable text was produced
	StatusError Status = "error"
)

// PersonaContext carries the agent- and task-side inputs a generator may
// condition on. Fallback generation depends only on these fields, never on
// external state.
type PersonaContext struct {
	AgentID            string
	PersonName         string
	CommunicationStyle string
	DecisionStyle      string
	Skills             map[string]float64
	PreferredTaskTypes []string
	TaskType           string
	RequiredSkills     []string
}

// Generator turns a prompt plus persona context into generated text.
// Text is non-empty when status is ok or fallback; on error the text must
// not be used. Implementations honor the context deadline.
type Generator interface {
	Generate(ctx context.Context, prompt string, pc PersonaContext) (string, Status, error)
}
