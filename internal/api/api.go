// internal/api/api.go
package api

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/TEAMTWIN/internal/agent"
	"github.com/TEAMTWIN/internal/config"
	"github.com/TEAMTWIN/internal/events"
	"github.com/TEAMTWIN/internal/rg"
	"github.com/TEAMTWIN/internal/secrets"
	"github.com/TEAMTWIN/internal/skb"
	"github.com/TEAMTWIN/internal/task"
)

// API is the single boundary external collaborators (HTTP, MCP) talk to.
// It validates input, invokes the core, and maps surfaced errors onto the
// stable kind taxonomy.
type API struct {
	kb     *skb.SKB
	mgr    *agent.Manager
	events *events.Bus
	keys   *secrets.Store
	cfg    config.Config

	mu      sync.RWMutex
	workers map[string]*agent.Worker
}

// New wires the boundary over an assembled core
func New(kb *skb.SKB, mgr *agent.Manager, eventBus *events.Bus, keys *secrets.Store, cfg config.Config) *API {
	return &API{
		kb:      kb,
		mgr:     mgr,
		events:  eventBus,
		keys:    keys,
		cfg:     cfg,
		workers: make(map[string]*agent.Worker),
	}
}

// AttachWorker makes a running worker reachable for generator swaps via
// UpdateAgent
func (a *API) AttachWorker(w *agent.Worker) {
	a.mu.Lock()
	a.workers[w.ID] = w
	a.mu.Unlock()
}

// CreateTask normalizes the input and inserts a pending task. Re-creating
// an existing id with an identical payload returns the stored task;
// a differing payload is a conflict.
func (a *API) CreateTask(in task.Input) (*task.Task, error) {
	t, err := task.New(in)
	if err != nil {
		return nil, newError(KindInvalidArgument, "%v", err)
	}

	if err := a.kb.AddTask(t); err != nil {
		if !errors.Is(err, skb.ErrConflict) {
			return nil, wrap(err)
		}
		existing, getErr := a.kb.GetTask(t.ID)
		if getErr != nil {
			return nil, wrap(err)
		}
		if samePayload(existing, t) {
			return existing, nil
		}
		return nil, newError(KindConflict, "task %s already exists with a different payload", t.ID)
	}

	a.publish(events.EventTaskCreated, map[string]interface{}{"task": t})
	return t, nil
}

// DistributeTask runs the two-phase negotiation for a pending task.
// Idempotent: a task that already has an assignment returns it without
// re-running the protocol.
func (a *API) DistributeTask(ctx context.Context, taskID string) (*skb.Assignment, error) {
	if existing, err := a.kb.GetAssignment(taskID); err == nil {
		return existing, nil
	}

	t, err := a.kb.GetTask(taskID)
	if err != nil {
		return nil, wrap(err)
	}
	if t.Status != task.StatusPending {
		return nil, newError(KindConflict, "task %s is %s, not pending", taskID, t.Status)
	}

	assignment, err := a.mgr.Distribute(ctx, taskID)
	if err != nil {
		return nil, wrap(err)
	}
	return assignment, nil
}

// GetTask returns one task
func (a *API) GetTask(taskID string) (*task.Task, error) {
	t, err := a.kb.GetTask(taskID)
	return t, wrap(err)
}

// ListTasks returns tasks matching the filter, newest first
func (a *API) ListTasks(f skb.TaskFilter) []*task.Task {
	return a.kb.ListTasks(f)
}

// GetAssignment returns the assignment for a task
func (a *API) GetAssignment(taskID string) (*skb.Assignment, error) {
	assignment, err := a.kb.GetAssignment(taskID)
	return assignment, wrap(err)
}

// ListAgents returns the agent directory
func (a *API) ListAgents() []skb.AgentInfo {
	return a.kb.ListAgents()
}

// GetAgent returns one directory entry
func (a *API) GetAgent(agentID string) (*skb.AgentInfo, error) {
	info, err := a.kb.GetAgent(agentID)
	return info, wrap(err)
}

// UpdateTaskStatus applies a lifecycle transition. Capacity bookkeeping for
// the assigned agent rides along atomically in the knowledge base.
func (a *API) UpdateTaskStatus(taskID string, newStatus task.Status) (*task.Task, error) {
	switch newStatus {
	case task.StatusInProgress, task.StatusCompleted, task.StatusFailed, task.StatusCancelled:
	case task.StatusAssigned:
		// Assignment carries an assignee and an Assignment record; a bare
		// status write would leave both empty.
		return nil, newError(KindInvalidArgument, "status assigned is set through distribution, not directly")
	default:
		return nil, newError(KindInvalidArgument, "unknown status %q", newStatus)
	}

	t, err := a.kb.UpdateTaskStatus(taskID, newStatus, a.cfg.WeeklyHourBudget)
	if err != nil {
		return nil, wrap(err)
	}

	a.publish(events.EventTaskStatusChanged, map[string]interface{}{"task": t})
	return t, nil
}

// AgentPatch carries the recognized update_agent keys. Nil fields are
// left untouched.
type AgentPatch struct {
	PersonName        *string                 `json:"person_name,omitempty"`
	Capabilities      *skb.Capabilities       `json:"capabilities,omitempty"`
	ResponseGenerator *config.GeneratorConfig `json:"response_generator,omitempty"`
	IsAvailable       *bool                   `json:"is_available,omitempty"`
}

// UpdateAgent applies a patch to one agent. The patch takes effect
// atomically: validation happens up front and no partial state is left
// behind on failure.
func (a *API) UpdateAgent(agentID string, patch AgentPatch) (*skb.AgentInfo, error) {
	if _, err := a.kb.GetAgent(agentID); err != nil {
		return nil, wrap(err)
	}

	if patch.PersonName != nil {
		if *patch.PersonName == "" {
			return nil, newError(KindInvalidArgument, "person_name must be non-empty")
		}
		if err := a.kb.SetAgentName(agentID, *patch.PersonName); err != nil {
			return nil, wrap(err)
		}
	}
	if patch.Capabilities != nil {
		if err := a.kb.UpdateAgentCapabilities(agentID, *patch.Capabilities); err != nil {
			return nil, wrap(err)
		}
	}
	if patch.IsAvailable != nil {
		err := a.kb.UpdateAgentContext(agentID, func(c *skb.AgentContext) {
			c.IsAvailable = *patch.IsAvailable
		})
		if err != nil {
			return nil, wrap(err)
		}
	}
	if patch.ResponseGenerator != nil {
		a.mu.RLock()
		w := a.workers[agentID]
		a.mu.RUnlock()
		if w == nil {
			return nil, newError(KindNotFound, "agent %s has no running worker to regenerate", agentID)
		}
		w.SetGenerator(rg.Resolve(agentID, *patch.ResponseGenerator, a.keys, a.cfg))
	}

	info, err := a.kb.GetAgent(agentID)
	if err != nil {
		return nil, wrap(err)
	}

	a.publish(events.EventAgentUpdated, map[string]interface{}{"agent": info})
	return info, nil
}

// MessageHistory exposes the audit log for one task (empty id = full log)
func (a *API) MessageHistory(taskID string) []skb.AuditEntry {
	return a.kb.MessageHistory(taskID)
}

func (a *API) publish(et events.EventType, payload map[string]interface{}) {
	if a.events == nil {
		return
	}
	a.events.Publish(events.NewEvent(et, "api", "all", payload))
}

// samePayload compares the caller-controlled fields, ignoring timestamps
// and lifecycle state
func samePayload(a, b *task.Task) bool {
	return a.Title == b.Title &&
		a.Description == b.Description &&
		a.Type == b.Type &&
		a.Priority == b.Priority &&
		a.EstimatedHours == b.EstimatedHours &&
		reflect.DeepEqual(a.RequiredSkills, b.RequiredSkills) &&
		reflect.DeepEqual(a.Dependencies, b.Dependencies) &&
		sameDeadline(a.Deadline, b.Deadline) &&
		reflect.DeepEqual(a.Metadata, b.Metadata)
}

func sameDeadline(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
