// internal/agent/manager.go
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/TEAMTWIN/internal/comms"
	"github.com/TEAMTWIN/internal/config"
	"github.com/TEAMTWIN/internal/events"
	"github.com/TEAMTWIN/internal/rg"
	"github.com/TEAMTWIN/internal/skb"
	"github.com/TEAMTWIN/internal/task"
)

// ErrNoViableAgent means Phase 1 produced no candidate able to take the task
var ErrNoViableAgent = errors.New("no viable agent")

// ErrInternal marks a distribution failure in the manager's own plumbing
var ErrInternal = errors.New("internal error")

// Manager drives the two-phase distribution: Phase 1 consults every worker
// individually, Phase 2 lets viable candidates deliberate, finalization
// records exactly one assignment.
type Manager struct {
	Base

	cfg    config.Config
	events *events.Bus

	mu         sync.Mutex
	collectors map[string][]chan comms.Message
}

// NewManager registers the manager's inbox and returns it ready to Run
func NewManager(id, personName string, kb *skb.SKB, bus *comms.Bus, gen rg.Generator, cfg config.Config, eventBus *events.Bus) *Manager {
	m := &Manager{
		cfg:        cfg,
		events:     eventBus,
		collectors: make(map[string][]chan comms.Message),
	}
	m.init(id, personName, kb, bus, gen)
	return m
}

// Run consumes the inbox, routing protocol responses to the distribution
// that is waiting for them. Multiple distributions of the same task each
// receive their own copy.
func (m *Manager) Run(ctx context.Context) error {
	return m.runLoop(ctx, func(_ context.Context, msg comms.Message) {
		switch msg.Type {
		case comms.TypeConsultationResponse, comms.TypeNegotiationTurn:
			m.route(msg)
		case comms.TypeConsensusAck, comms.TypeGeneral:
			// Acknowledgements and chatter need no action.
		default:
			log.Printf("[Manager %s] unsupported message type %q from %s", m.ID, msg.Type, msg.From)
		}
	})
}

func (m *Manager) route(msg comms.Message) {
	m.mu.Lock()
	chans := append([]chan comms.Message(nil), m.collectors[msg.TaskID]...)
	m.mu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- msg:
		default:
			log.Printf("[Manager %s] collector for task %s is full, dropping %s", m.ID, msg.TaskID, msg.Type)
		}
	}
}

func (m *Manager) addCollector(taskID string) chan comms.Message {
	ch := make(chan comms.Message, 64)
	m.mu.Lock()
	m.collectors[taskID] = append(m.collectors[taskID], ch)
	m.mu.Unlock()
	return ch
}

func (m *Manager) removeCollector(taskID string, ch chan comms.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chans := m.collectors[taskID]
	for i, c := range chans {
		if c == ch {
			m.collectors[taskID] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(m.collectors[taskID]) == 0 {
		delete(m.collectors, taskID)
	}
}

// Distribute negotiates an assignee for a pending task. A task that is
// already assigned returns its existing assignment unchanged.
func (m *Manager) Distribute(ctx context.Context, taskID string) (*skb.Assignment, error) {
	t, err := m.kb.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if t.Status != task.StatusPending {
		if a, err := m.kb.GetAssignment(taskID); err == nil {
			return a, nil
		}
		return nil, fmt.Errorf("task %s is %s, not pending: %w", taskID, t.Status, skb.ErrConflict)
	}

	// Freeze the candidate pool for this distribution.
	var workers []string
	for _, info := range m.kb.ListAgents() {
		if info.Role == skb.RoleWorker && info.ID != m.ID {
			workers = append(workers, info.ID)
		}
	}

	ch := m.addCollector(taskID)
	defer m.removeCollector(taskID, ch)

	assessments, err := m.phase1(ctx, t, workers, ch)
	if err != nil {
		return nil, err
	}

	var viable []Assessment
	for _, a := range assessments {
		if a.CanHandle {
			viable = append(viable, a)
		}
	}
	sort.Slice(viable, func(i, j int) bool { return viable[i].AgentID < viable[j].AgentID })

	switch len(viable) {
	case 0:
		log.Printf("[Manager %s] task %s: no viable candidate among %d workers", m.ID, taskID, len(workers))
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNoViableAgent)
	case 1:
		return m.finalize(ctx, t, viable[0].AgentID, "Phase 1 sole viable")
	}

	winner, reason := m.phase2(ctx, t, viable, ch)
	return m.finalize(ctx, t, winner, reason)
}

// phase1 fans one consultation out per worker and gathers assessments.
// Workers that cannot be reached or do not answer in time become
// non-viable votes rather than errors.
func (m *Manager) phase1(ctx context.Context, t *task.Task, workers []string, ch chan comms.Message) (map[string]Assessment, error) {
	assessments := make(map[string]Assessment, len(workers))
	pending := make(map[string]bool, len(workers))

	for _, id := range workers {
		msg, err := comms.NewMessage(m.ID, id, comms.TypeTaskConsultation, t.ID, consultationRequest{Task: t})
		if err != nil {
			return nil, fmt.Errorf("encoding consultation: %v: %w", err, ErrInternal)
		}
		if err := m.bus.Send(msg); err != nil {
			if errors.Is(err, comms.ErrUnknownRecipient) {
				log.Printf("[Manager %s] worker %s unreachable, excluding from task %s", m.ID, id, t.ID)
				assessments[id] = Assessment{AgentID: id, TaskID: t.ID, Concerns: []string{ConcernUnreachable}}
				continue
			}
			return nil, fmt.Errorf("consulting %s: %v: %w", id, err, ErrInternal)
		}
		pending[id] = true
	}

	deadline := time.Now().Add(m.cfg.Phase1TotalTimeout)
	for len(pending) > 0 {
		wait := m.cfg.Phase1PerResponseTimeout
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		if wait <= 0 {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case msg := <-ch:
			timer.Stop()
			if msg.Type != comms.TypeConsultationResponse || !pending[msg.From] {
				continue
			}
			var a Assessment
			if err := json.Unmarshal(msg.Payload, &a); err != nil {
				log.Printf("[Manager %s] malformed assessment from %s: %v", m.ID, msg.From, err)
				continue
			}
			a.AgentID = msg.From
			assessments[msg.From] = a
			delete(pending, msg.From)
		case <-timer.C:
			// No response inside the window; give up on the laggards.
			pending = nil
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}

	for id := range pending {
		assessments[id] = Assessment{AgentID: id, TaskID: t.ID, Concerns: []string{ConcernNoResponse}}
	}
	for _, id := range workers {
		if _, ok := assessments[id]; !ok {
			assessments[id] = Assessment{AgentID: id, TaskID: t.ID, Concerns: []string{ConcernNoResponse}}
		}
	}
	return assessments, nil
}

// phase2 runs up to R deliberation rounds and returns the winner plus the
// reason string for the assignment record. Round k+1 starts only after
// round k's turns are gathered; a silent candidate stays in the pool.
func (m *Manager) phase2(ctx context.Context, t *task.Task, viable []Assessment, ch chan comms.Message) (string, string) {
	var priorTurns []Turn

	for round := 1; round <= m.cfg.NegotiationMaxRounds; round++ {
		req := turnRequest{Round: round, Assessments: viable, PriorTurns: priorTurns}

		expected := make(map[string]bool, len(viable))
		for _, a := range viable {
			msg, err := comms.NewMessage(m.ID, a.AgentID, comms.TypeNegotiationTurn, t.ID, req)
			if err != nil {
				continue
			}
			if err := m.bus.Send(msg); err != nil {
				log.Printf("[Manager %s] round %d: cannot reach %s: %v", m.ID, round, a.AgentID, err)
				continue
			}
			expected[a.AgentID] = true
		}

		turns := m.collectTurns(ctx, ch, expected, round)

		if winner, ok := consensusWinner(turns); ok {
			return winner, fmt.Sprintf("Phase 2 consensus in round %d", round)
		}

		priorTurns = priorTurns[:0]
		ids := make([]string, 0, len(turns))
		for id := range turns {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			priorTurns = append(priorTurns, turns[id])
		}
	}

	return tieBreak(viable), "Phase 2 tie-break"
}

func (m *Manager) collectTurns(ctx context.Context, ch chan comms.Message, expected map[string]bool, round int) map[string]Turn {
	turns := make(map[string]Turn, len(expected))
	deadline := time.NewTimer(m.cfg.Phase2RoundTimeout)
	defer deadline.Stop()

	for len(turns) < len(expected) {
		select {
		case msg := <-ch:
			if msg.Type != comms.TypeNegotiationTurn || !expected[msg.From] {
				continue
			}
			var turn Turn
			if err := json.Unmarshal(msg.Payload, &turn); err != nil {
				log.Printf("[Manager %s] malformed turn from %s: %v", m.ID, msg.From, err)
				continue
			}
			if turn.Round != round {
				continue
			}
			turn.AgentID = msg.From
			turns[msg.From] = turn
		case <-deadline.C:
			return turns
		case <-ctx.Done():
			return turns
		}
	}
	return turns
}

// consensusWinner applies the structural rule: exactly one claimer, and
// either someone deferred to them or every other respondent deferred
func consensusWinner(turns map[string]Turn) (string, bool) {
	var claimer string
	claims := 0
	for id, t := range turns {
		if t.Position == PositionClaim {
			claimer = id
			claims++
		}
	}
	if claims != 1 {
		return "", false
	}

	deferredToClaimer := false
	othersAllDefer := true
	for id, t := range turns {
		if id == claimer {
			continue
		}
		if t.Position == PositionDefer {
			if t.DeferredTo == claimer {
				deferredToClaimer = true
			}
		} else {
			othersAllDefer = false
		}
	}
	if deferredToClaimer || othersAllDefer {
		return claimer, true
	}
	return "", false
}

// tieBreak orders the Phase 1 assessments by confidence, then lighter
// load, then shorter estimate, then agent id
func tieBreak(viable []Assessment) string {
	best := viable[0]
	for _, a := range viable[1:] {
		if assessmentLess(best, a) {
			best = a
		}
	}
	return best.AgentID
}

// assessmentLess reports whether b beats a under the tie-break key
func assessmentLess(a, b Assessment) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence < b.Confidence
	}
	if a.Utilization != b.Utilization {
		return a.Utilization > b.Utilization
	}
	if a.EstimatedTime != b.EstimatedTime {
		return a.EstimatedTime > b.EstimatedTime
	}
	return a.AgentID > b.AgentID
}

// finalize records the assignment. Losing a race to another distribution
// is not an error: the existing assignment is returned unchanged.
func (m *Manager) finalize(ctx context.Context, t *task.Task, winner, reason string) (*skb.Assignment, error) {
	a, err := m.kb.SetAssignment(t.ID, winner, reason)
	if err != nil {
		if errors.Is(err, skb.ErrConflict) && a != nil {
			log.Printf("[Manager %s] task %s already assigned to %s, keeping it", m.ID, t.ID, a.AgentID)
			return a, nil
		}
		return nil, err
	}

	if _, err := m.kb.RecomputeLoad(winner, m.cfg.WeeklyHourBudget); err != nil {
		log.Printf("[Manager %s] load recompute for %s failed: %v", m.ID, winner, err)
	}

	if m.events != nil {
		m.events.Publish(events.NewEvent(events.EventTaskAssigned, m.ID, "all", map[string]interface{}{
			"task_id":  t.ID,
			"agent_id": winner,
			"reason":   reason,
		}))
	}

	// Tell the winner; best-effort, the assignment already stands.
	if msg, err := comms.NewMessage(m.ID, winner, comms.TypeConsensusProposal, t.ID,
		consensusProposal{TaskID: t.ID, AgentID: winner, Reason: reason}); err == nil {
		if err := m.bus.Send(msg); err != nil {
			log.Printf("[Manager %s] could not notify %s of assignment: %v", m.ID, winner, err)
		}
	}

	log.Printf("[Manager %s] task %s assigned to %s (%s)", m.ID, t.ID, winner, reason)
	return a, nil
}
