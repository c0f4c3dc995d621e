// internal/agent/worker.go
package agent

import (
	"context"
	"encoding/json"
	"log"
	"sort"

	"github.com/TEAMTWIN/internal/comms"
	"github.com/TEAMTWIN/internal/rg"
	"github.com/TEAMTWIN/internal/skb"
	"github.com/TEAMTWIN/internal/task"
)

// Capability and capacity thresholds of the assessment and position rules
const (
	minSkillMatch      = 0.5
	maxUtilization     = 0.8
	stressConcernLevel = 0.6

	claimConfidence     = 0.7
	claimUtilization    = 0.6
	deferConfidenceEdge = 0.1
	deferUtilizationGap = 0.1
)

// Worker is a digital twin that assesses tasks for itself and deliberates
// with peers over who should take one
type Worker struct {
	Base
}

// NewWorker registers the worker's inbox and returns it ready to Run
func NewWorker(id, personName string, kb *skb.SKB, bus *comms.Bus, gen rg.Generator) *Worker {
	w := &Worker{}
	w.init(id, personName, kb, bus, gen)
	return w
}

// Run consumes the inbox until ctx ends
func (w *Worker) Run(ctx context.Context) error {
	return w.runLoop(ctx, w.handle)
}

func (w *Worker) handle(ctx context.Context, msg comms.Message) {
	switch msg.Type {
	case comms.TypeTaskConsultation:
		var req consultationRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil || req.Task == nil {
			log.Printf("[Agent %s] malformed consultation: %v", w.ID, err)
			return
		}
		a := w.AssessTask(ctx, req.Task)
		w.reply(msg, comms.TypeConsultationResponse, a)

	case comms.TypeNegotiationTurn:
		var req turnRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			log.Printf("[Agent %s] malformed negotiation turn: %v", w.ID, err)
			return
		}
		turn := w.Participate(ctx, msg.TaskID, req.Round, req.Assessments)
		w.reply(msg, comms.TypeNegotiationTurn, turn)

	case comms.TypeConsensusProposal:
		var p consensusProposal
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		w.reply(msg, comms.TypeConsensusAck, consensusAck{TaskID: p.TaskID, AgentID: w.ID, Accepted: true})

	case comms.TypeGeneral:
		// Informational, nothing to do.

	default:
		log.Printf("[Agent %s] unsupported message type %q from %s", w.ID, msg.Type, msg.From)
	}
}

// AssessTask computes the worker's verdict for a task from its registered
// capabilities and current context. It never mutates the knowledge base.
func (w *Worker) AssessTask(ctx context.Context, t *task.Task) Assessment {
	caps, err := w.kb.GetAgentCapabilities(w.ID)
	if err != nil {
		log.Printf("[Agent %s] no capability record: %v", w.ID, err)
	}
	agentCtx, err := w.kb.GetAgentContext(w.ID)
	if err != nil {
		log.Printf("[Agent %s] no context record: %v", w.ID, err)
	}

	skillMatch := skillMatch(caps.TechnicalSkills, t.RequiredSkills)
	capacityOK := agentCtx.Utilization < maxUtilization && agentCtx.IsAvailable
	confidence := skb.Clamp01(skillMatch * (1 - agentCtx.StressLevel))

	a := Assessment{
		AgentID:       w.ID,
		TaskID:        t.ID,
		CanHandle:     skillMatch >= minSkillMatch && capacityOK,
		Confidence:    confidence,
		EstimatedTime: t.EstimatedHours * (1 + agentCtx.StressLevel),
		Utilization:   agentCtx.Utilization,
	}

	if skillMatch < minSkillMatch {
		a.Concerns = append(a.Concerns, ConcernLowSkillMatch)
	}
	if agentCtx.Utilization >= maxUtilization {
		a.Concerns = append(a.Concerns, ConcernOverloaded)
	}
	if agentCtx.StressLevel >= stressConcernLevel {
		a.Concerns = append(a.Concerns, ConcernStressed)
	}
	if !prefersType(caps.PreferredTaskTypes, t.Type) {
		a.Concerns = append(a.Concerns, ConcernUnfamiliarType)
	}

	pc := w.persona()
	pc.TaskType = t.Type
	pc.RequiredSkills = t.RequiredSkills
	a.Rationale = w.generate(ctx, assessmentPrompt(t, a, skillMatch), pc, assessmentFallback(w.PersonName, a))
	return a
}

// Participate produces the worker's turn for one negotiation round. The
// position is a deterministic function of the assessments; generated text
// only justifies it.
func (w *Worker) Participate(ctx context.Context, taskID string, round int, assessments []Assessment) Turn {
	agentCtx, err := w.kb.GetAgentContext(w.ID)
	if err != nil {
		log.Printf("[Agent %s] no context record: %v", w.ID, err)
	}

	var self Assessment
	var peers []Assessment
	for _, a := range assessments {
		if a.AgentID == w.ID {
			self = a
		} else {
			peers = append(peers, a)
		}
	}

	turn := Turn{
		AgentID:         w.ID,
		TaskID:          taskID,
		Round:           round,
		SelfConfidence:  self.Confidence,
		SelfUtilization: agentCtx.Utilization,
	}

	switch {
	case self.Confidence >= claimConfidence && agentCtx.Utilization < claimUtilization:
		turn.Position = PositionClaim

	default:
		if best, ok := bestDeferral(self, agentCtx.Utilization, peers); ok {
			turn.Position = PositionDefer
			turn.DeferredTo = best
		} else {
			turn.Position = PositionReluctantAccept
		}
	}

	pc := w.persona()
	turn.Rationale = w.generate(ctx, turnPrompt(turn, peers), pc, turnFallback(w.PersonName, turn))
	return turn
}

// bestDeferral picks the peer with the largest advantage over self, if any
// peer qualifies. Ties break by lower utilization, then agent id.
func bestDeferral(self Assessment, selfUtil float64, peers []Assessment) (string, bool) {
	var qualified []Assessment
	for _, p := range peers {
		if p.Confidence > self.Confidence+deferConfidenceEdge ||
			(p.Confidence >= self.Confidence && p.Utilization < selfUtil-deferUtilizationGap) {
			qualified = append(qualified, p)
		}
	}
	if len(qualified) == 0 {
		return "", false
	}
	sort.Slice(qualified, func(i, j int) bool {
		a, b := qualified[i], qualified[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Utilization != b.Utilization {
			return a.Utilization < b.Utilization
		}
		return a.AgentID < b.AgentID
	})
	return qualified[0].AgentID, true
}

// skillMatch averages the agent's proficiency over the required skills.
// An empty requirement set is neutral.
func skillMatch(skills map[string]float64, required []string) float64 {
	if len(required) == 0 {
		return 0.5
	}
	var sum float64
	for _, s := range required {
		sum += skills[s]
	}
	return sum / float64(len(required))
}

func prefersType(preferred []string, taskType string) bool {
	for _, p := range preferred {
		if p == taskType {
			return true
		}
	}
	return false
}
