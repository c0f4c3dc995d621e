// internal/agent/agent.go
package agent

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/TEAMTWIN/internal/comms"
	"github.com/TEAMTWIN/internal/rg"
	"github.com/TEAMTWIN/internal/skb"
)

// Base carries what every agent needs: its identity, the knowledge base,
// the bus its inbox lives on, and its response generator
type Base struct {
	ID         string
	PersonName string

	kb  *skb.SKB
	bus *comms.Bus

	genMu sync.RWMutex
	gen   rg.Generator
}

// SetGenerator swaps the agent's response generator. Safe while the agent
// is running; in-flight generations finish on the old one.
func (b *Base) SetGenerator(gen rg.Generator) {
	b.genMu.Lock()
	b.gen = gen
	b.genMu.Unlock()
}

func (b *Base) init(id, personName string, kb *skb.SKB, bus *comms.Bus, gen rg.Generator) {
	bus.Register(id)
	b.ID = id
	b.PersonName = personName
	b.kb = kb
	b.bus = bus
	b.gen = gen
}

// persona builds the generation context from the agent's registered
// capabilities. Task fields are filled in by the caller.
func (b *Base) persona() rg.PersonaContext {
	pc := rg.PersonaContext{
		AgentID:    b.ID,
		PersonName: b.PersonName,
	}
	caps, err := b.kb.GetAgentCapabilities(b.ID)
	if err != nil {
		return pc
	}
	pc.CommunicationStyle = caps.CommunicationStyle
	pc.DecisionStyle = caps.DecisionStyle
	pc.Skills = caps.TechnicalSkills
	pc.PreferredTaskTypes = caps.PreferredTaskTypes
	return pc
}

// generate runs the RG and substitutes a deterministic fallback when it
// fails, so protocol handlers never propagate generation errors
func (b *Base) generate(ctx context.Context, prompt string, pc rg.PersonaContext, fallback string) string {
	b.genMu.RLock()
	gen := b.gen
	b.genMu.RUnlock()

	text, _, err := gen.Generate(ctx, prompt, pc)
	if err != nil || text == "" {
		if err != nil {
			log.Printf("[Agent %s] generation failed, using deterministic rationale: %v", b.ID, err)
		}
		return fallback
	}
	return text
}

// runLoop consumes the inbox until the context ends, dispatching each
// message through handle
func (b *Base) runLoop(ctx context.Context, handle func(context.Context, comms.Message)) error {
	for {
		msg, err := b.bus.Recv(ctx, b.ID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		handle(ctx, msg)
	}
}

// reply sends a response message back to the sender of msg
func (b *Base) reply(msg comms.Message, mt comms.MessageType, payload interface{}) {
	out, err := comms.NewMessage(b.ID, msg.From, mt, msg.TaskID, payload)
	if err != nil {
		log.Printf("[Agent %s] failed to encode %s reply: %v", b.ID, mt, err)
		return
	}
	if err := b.bus.Send(out); err != nil {
		log.Printf("[Agent %s] failed to deliver %s to %s: %v", b.ID, mt, msg.From, err)
	}
}
