// internal/skb/skb.go
package skb

import (
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/TEAMTWIN/internal/task"
)

// overrunWindow is how many recent completed tasks feed the stress model
const overrunWindow = 5

// overrunThreshold marks a completion as overrun when actual hours exceed
// the estimate by more than 25%
const overrunThreshold = 1.25

// MetadataActualHours is the task metadata key recording real effort on
// completion; it feeds the overrun fraction of the stress model
const MetadataActualHours = "actual_hours"

// SKB is the Shared Knowledge Base: the single authoritative store for
// tasks, assignments, agent capabilities, agent contexts, and the message
// audit log. One mutex serializes all writers; cross-key operations used
// by the negotiation protocol run entirely under it.
type SKB struct {
	mu          sync.RWMutex
	tasks       map[string]*task.Task
	assignments map[string]*Assignment
	agents      map[string]*AgentInfo
	caps        map[string]Capabilities
	contexts    map[string]*AgentContext
	audit       []AuditEntry
	store       *DurableStore // optional sqlite mirror
}

// New creates a knowledge base. A nil store keeps everything in memory;
// a non-nil store mirrors mutations and hydrates existing records.
func New(store *DurableStore) *SKB {
	s := &SKB{
		tasks:       make(map[string]*task.Task),
		assignments: make(map[string]*Assignment),
		agents:      make(map[string]*AgentInfo),
		caps:        make(map[string]Capabilities),
		contexts:    make(map[string]*AgentContext),
		store:       store,
	}
	if store != nil {
		if err := s.hydrate(); err != nil {
			log.Printf("[SKB] failed to hydrate from durable store, continuing in-memory: %v", err)
			s.store = nil
		}
	}
	return s
}

func (s *SKB) hydrate() error {
	tasks, err := s.store.LoadTasks()
	if err != nil {
		return err
	}
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	assignments, err := s.store.LoadAssignments()
	if err != nil {
		return err
	}
	for _, a := range assignments {
		s.assignments[a.TaskID] = a
	}
	return nil
}

// --- Tasks ---

// AddTask inserts a new task. The id must be unique.
func (s *SKB) AddTask(t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("task %s: %w", t.ID, ErrConflict)
	}
	s.tasks[t.ID] = t.Clone()
	s.mirrorTask(t)
	return nil
}

// GetTask returns a copy of the task
func (s *SKB) GetTask(id string) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t.Clone(), nil
}

// TaskFilter narrows ListTasks results
type TaskFilter struct {
	Status     task.Status
	AssignedTo string
	Type       string
	Limit      int
}

// ListTasks returns copies of tasks matching the filter, newest first
func (s *SKB) ListTasks(f TaskFilter) []*task.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*task.Task
	for _, t := range s.tasks {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// UpdateTask applies a mutation to the stored task under the write lock
func (s *SKB) UpdateTask(id string, mutate func(*task.Task) error) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err := mutate(t); err != nil {
		return nil, err
	}
	t.Touch()
	s.mirrorTask(t)
	return t.Clone(), nil
}

// DeleteTask removes a task and any assignment it carries
func (s *SKB) DeleteTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	delete(s.tasks, id)
	delete(s.assignments, id)
	if s.store != nil {
		if err := s.store.DeleteTask(id); err != nil {
			log.Printf("[SKB] durable delete of task %s failed: %v", id, err)
		}
	}
	return nil
}

// --- Assignments ---

// SetAssignment atomically records the assignment, moves the task to
// assigned, and sets the assignee. Returns the existing assignment wrapped
// in ErrConflict when the task is already assigned.
func (s *SKB) SetAssignment(taskID, agentID, reason string) (*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.assignments[taskID]; ok {
		dup := *existing
		return &dup, fmt.Errorf("task %s already assigned to %s: %w", taskID, existing.AgentID, ErrConflict)
	}

	t, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if _, ok := s.agents[agentID]; !ok {
		return nil, fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	if err := t.TransitionTo(task.StatusAssigned); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrConflict)
	}
	t.AssignedTo = agentID

	a := &Assignment{
		TaskID:     taskID,
		AgentID:    agentID,
		AssignedAt: time.Now(),
		Reason:     reason,
	}
	s.assignments[taskID] = a
	s.mirrorTask(t)
	s.mirrorAssignment(a)

	dup := *a
	return &dup, nil
}

// ReleaseAssignment removes the assignment record and clears the assignee.
// Used on cancellation; the task status change is the caller's transition.
func (s *SKB) ReleaseAssignment(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseAssignmentLocked(taskID)
}

func (s *SKB) releaseAssignmentLocked(taskID string) error {
	if _, ok := s.assignments[taskID]; !ok {
		return fmt.Errorf("assignment for task %s: %w", taskID, ErrNotFound)
	}
	delete(s.assignments, taskID)
	if t, ok := s.tasks[taskID]; ok {
		t.AssignedTo = ""
		t.Touch()
		s.mirrorTask(t)
	}
	if s.store != nil {
		if err := s.store.DeleteAssignment(taskID); err != nil {
			log.Printf("[SKB] durable delete of assignment %s failed: %v", taskID, err)
		}
	}
	return nil
}

// GetAssignment returns a copy of the task's assignment
func (s *SKB) GetAssignment(taskID string) (*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[taskID]
	if !ok {
		return nil, fmt.Errorf("assignment for task %s: %w", taskID, ErrNotFound)
	}
	dup := *a
	return &dup, nil
}

// --- Task lifecycle with capacity accounting ---

// UpdateTaskStatus applies a lifecycle transition and its capacity side
// effects as one atomic operation: entering in_progress refreshes the
// assignee's load, terminal states release it, and cancellation also
// releases the assignment record.
func (s *SKB) UpdateTaskStatus(taskID string, newStatus task.Status, budget float64) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}

	agentID := t.AssignedTo
	// Entering assigned requires an Assignment record; SetAssignment is the
	// only writer that creates one, and it moves the task itself.
	if newStatus == task.StatusAssigned {
		if _, hasAssignment := s.assignments[taskID]; !hasAssignment {
			return nil, fmt.Errorf("task %s has no assignment record: %w", taskID, ErrConflict)
		}
	}
	if err := t.TransitionTo(newStatus); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrConflict)
	}

	if newStatus == task.StatusCancelled {
		if _, hadAssignment := s.assignments[taskID]; hadAssignment {
			if err := s.releaseAssignmentLocked(taskID); err != nil {
				return nil, err
			}
		}
	}
	s.mirrorTask(t)

	if agentID != "" {
		s.recomputeLoadLocked(agentID, budget)
	}
	return t.Clone(), nil
}

// --- Agents ---

// RegisterAgent adds a directory entry with its capabilities and a fresh
// context (available, zero load)
func (s *SKB) RegisterAgent(info AgentInfo, caps Capabilities) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.agents[info.ID]; exists {
		return fmt.Errorf("agent %s: %w", info.ID, ErrConflict)
	}
	if info.RegisteredAt.IsZero() {
		info.RegisteredAt = time.Now()
	}
	s.agents[info.ID] = &info
	s.caps[info.ID] = caps.Clone()
	s.contexts[info.ID] = &AgentContext{IsAvailable: true, LastActive: time.Now()}
	return nil
}

// GetAgent returns the directory entry for one agent
func (s *SKB) GetAgent(id string) (*AgentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	dup := *info
	return &dup, nil
}

// ListAgents returns the directory, ordered by agent id
func (s *SKB) ListAgents() []AgentInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]AgentInfo, 0, len(s.agents))
	for _, info := range s.agents {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetAgentName renames an agent's display name
func (s *SKB) SetAgentName(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.agents[id]
	if !ok {
		return fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	info.PersonName = name
	return nil
}

// GetAgentCapabilities returns a copy of the agent's declared capabilities
func (s *SKB) GetAgentCapabilities(id string) (Capabilities, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	caps, ok := s.caps[id]
	if !ok {
		return Capabilities{}, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return caps.Clone(), nil
}

// UpdateAgentCapabilities replaces the agent's capability record atomically
func (s *SKB) UpdateAgentCapabilities(id string, caps Capabilities) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.caps[id]; !ok {
		return fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	s.caps[id] = caps.Clone()
	return nil
}

// GetAgentContext returns a copy of the agent's live context
func (s *SKB) GetAgentContext(id string) (AgentContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, ok := s.contexts[id]
	if !ok {
		return AgentContext{}, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return *ctx, nil
}

// UpdateAgentContext applies a mutation to the agent's context
func (s *SKB) UpdateAgentContext(id string, mutate func(*AgentContext)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, ok := s.contexts[id]
	if !ok {
		return fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	mutate(ctx)
	ctx.Utilization = Clamp01(ctx.Utilization)
	ctx.StressLevel = Clamp01(ctx.StressLevel)
	ctx.LastActive = time.Now()
	return nil
}

// SnapshotAllAgentContexts returns a consistent point-in-time view of every
// agent context, used to freeze the candidate pool for one negotiation
func (s *SKB) SnapshotAllAgentContexts() map[string]AgentContext {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]AgentContext, len(s.contexts))
	for id, ctx := range s.contexts {
		out[id] = *ctx
	}
	return out
}

// RecomputeLoad rederives an agent's utilization and stress from the task
// registry: utilization is in-flight estimated hours over the weekly
// budget; stress blends utilization with the recent overrun fraction.
func (s *SKB) RecomputeLoad(agentID string, budget float64) (AgentContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contexts[agentID]; !ok {
		return AgentContext{}, fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	s.recomputeLoadLocked(agentID, budget)
	return *s.contexts[agentID], nil
}

func (s *SKB) recomputeLoadLocked(agentID string, budget float64) {
	ctx, ok := s.contexts[agentID]
	if !ok {
		return
	}
	if budget <= 0 {
		budget = 40
	}

	var inFlight float64
	for _, t := range s.tasks {
		if t.AssignedTo == agentID && t.InFlight() {
			inFlight += t.EstimatedHours
		}
	}

	ctx.Utilization = Clamp01(inFlight / budget)
	ctx.StressLevel = Clamp01(0.6*ctx.Utilization + 0.4*s.overrunFractionLocked(agentID))
	ctx.LastActive = time.Now()
}

// overrunFractionLocked computes the share of the agent's most recent
// completed tasks whose recorded actual hours exceeded the estimate by
// more than 25%. Unknown history contributes zero.
func (s *SKB) overrunFractionLocked(agentID string) float64 {
	var completed []*task.Task
	for _, t := range s.tasks {
		if t.AssignedTo == agentID && t.Status == task.StatusCompleted {
			completed = append(completed, t)
		}
	}
	if len(completed) == 0 {
		return 0
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].UpdatedAt.After(completed[j].UpdatedAt)
	})
	if len(completed) > overrunWindow {
		completed = completed[:overrunWindow]
	}

	overruns := 0
	for _, t := range completed {
		raw, ok := t.Metadata[MetadataActualHours]
		if !ok {
			continue
		}
		actual, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		if t.EstimatedHours > 0 && actual > t.EstimatedHours*overrunThreshold {
			overruns++
		}
	}
	return float64(overruns) / float64(len(completed))
}

// --- Audit log ---

// AppendMessage records a delivered protocol message
func (s *SKB) AppendMessage(e AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit = append(s.audit, e)
	if s.store != nil {
		if err := s.store.SaveAuditEntry(e); err != nil {
			log.Printf("[SKB] durable audit write failed: %v", err)
		}
	}
}

// MessageHistory returns the delivered messages for one task in delivery
// order; an empty task id returns the full log
func (s *SKB) MessageHistory(taskID string) []AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []AuditEntry
	for _, e := range s.audit {
		if taskID == "" || e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out
}

// --- Durable mirror helpers (best-effort, under lock) ---

func (s *SKB) mirrorTask(t *task.Task) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveTask(t); err != nil {
		log.Printf("[SKB] durable write of task %s failed: %v", t.ID, err)
	}
}

func (s *SKB) mirrorAssignment(a *Assignment) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveAssignment(a); err != nil {
		log.Printf("[SKB] durable write of assignment %s failed: %v", a.TaskID, err)
	}
}
