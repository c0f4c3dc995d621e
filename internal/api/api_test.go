// internal/api/api_test.go
package api

import (
	"context"
	"testing"
	"time"

	"github.com/TEAMTWIN/internal/agent"
	"github.com/TEAMTWIN/internal/comms"
	"github.com/TEAMTWIN/internal/config"
	"github.com/TEAMTWIN/internal/events"
	"github.com/TEAMTWIN/internal/rg"
	"github.com/TEAMTWIN/internal/skb"
	"github.com/TEAMTWIN/internal/task"
)

type fixture struct {
	api    *API
	kb     *skb.SKB
	events *events.Bus
	ctx    context.Context
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Phase1PerResponseTimeout = 200 * time.Millisecond
	cfg.Phase1TotalTimeout = 400 * time.Millisecond
	cfg.Phase2RoundTimeout = 200 * time.Millisecond
	return cfg
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kb := skb.New(nil)
	bus := comms.NewBus(kb)
	ebus := events.NewBus(nil)
	cfg := testConfig()

	if err := kb.RegisterAgent(
		skb.AgentInfo{ID: "mgr", PersonName: "Dana Flores", Role: skb.RoleManager},
		skb.Capabilities{},
	); err != nil {
		t.Fatal(err)
	}
	mgr := agent.NewManager("mgr", "Dana Flores", kb, bus, rg.NewFallback(), cfg, ebus)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go mgr.Run(ctx)

	a := New(kb, mgr, ebus, nil, cfg)

	// A capable default worker so distribution has someone to talk to.
	addWorker(t, kb, bus, a, ctx, "a1", map[string]float64{"technical": 0.9, "documentation": 0.9})

	return &fixture{api: a, kb: kb, events: ebus, ctx: ctx}
}

func addWorker(t *testing.T, kb *skb.SKB, bus *comms.Bus, a *API, ctx context.Context, id string, skills map[string]float64) {
	t.Helper()
	if err := kb.RegisterAgent(
		skb.AgentInfo{ID: id, PersonName: "Worker " + id, Role: skb.RoleWorker},
		skb.Capabilities{TechnicalSkills: skills},
	); err != nil {
		t.Fatal(err)
	}
	w := agent.NewWorker(id, "Worker "+id, kb, bus, rg.NewFallback())
	a.AttachWorker(w)
	go w.Run(ctx)
}

func TestCreateTaskValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.api.CreateTask(task.Input{Title: "", EstimatedHours: 1})
	if ErrorKind(err) != KindInvalidArgument {
		t.Errorf("empty title: kind = %s", ErrorKind(err))
	}

	_, err = f.api.CreateTask(task.Input{Title: "t", EstimatedHours: -1})
	if ErrorKind(err) != KindInvalidArgument {
		t.Errorf("negative hours: kind = %s", ErrorKind(err))
	}

	created, err := f.api.CreateTask(task.Input{Title: "t", EstimatedHours: 1, Priority: 99, Type: "Backend work"})
	if err != nil {
		t.Fatal(err)
	}
	if created.Priority != 10 {
		t.Errorf("priority = %d, want clamped to 10", created.Priority)
	}
	if created.Status != task.StatusPending {
		t.Errorf("status = %s", created.Status)
	}
	if len(created.RequiredSkills) == 0 {
		t.Error("skills should be inferred from the type")
	}
}

func TestCreateTaskIdempotentOnIdenticalPayload(t *testing.T) {
	f := newFixture(t)
	in := task.Input{ID: "fixed-id", Title: "t", EstimatedHours: 2, Type: "Design work"}

	first, err := f.api.CreateTask(in)
	if err != nil {
		t.Fatal(err)
	}
	again, err := f.api.CreateTask(in)
	if err != nil {
		t.Fatalf("identical payload should be idempotent: %v", err)
	}
	if again.ID != first.ID || !again.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("idempotent create returned a different record")
	}

	in.EstimatedHours = 5
	_, err = f.api.CreateTask(in)
	if ErrorKind(err) != KindConflict {
		t.Errorf("differing payload: kind = %s", ErrorKind(err))
	}
}

func TestCreateTaskEmitsEvent(t *testing.T) {
	f := newFixture(t)
	ch := f.events.Subscribe("all", []events.EventType{events.EventTaskCreated})

	created, err := f.api.CreateTask(task.Input{Title: "t", EstimatedHours: 1})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-ch:
		payload, ok := e.Payload["task"].(*task.Task)
		if !ok || payload.ID != created.ID {
			t.Errorf("event payload = %+v", e.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no task_created event")
	}
}

func TestDistributeTaskEndToEnd(t *testing.T) {
	f := newFixture(t)
	created, err := f.api.CreateTask(task.Input{Title: "Update API docs", Type: "Technical content", EstimatedHours: 3})
	if err != nil {
		t.Fatal(err)
	}

	a, err := f.api.DistributeTask(f.ctx, created.ID)
	if err != nil {
		t.Fatalf("DistributeTask: %v", err)
	}
	if a.AgentID != "a1" {
		t.Errorf("assigned to %s", a.AgentID)
	}

	// Idempotent repeat.
	again, err := f.api.DistributeTask(f.ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.AgentID != a.AgentID || !again.AssignedAt.Equal(a.AssignedAt) {
		t.Errorf("repeat distribute changed the assignment")
	}
}

func TestDistributeTaskErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.api.DistributeTask(f.ctx, "missing")
	if ErrorKind(err) != KindNotFound {
		t.Errorf("unknown task: kind = %s", ErrorKind(err))
	}

	// A cancelled task has no assignment and is not pending.
	created, err := f.api.CreateTask(task.Input{Title: "t", EstimatedHours: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.api.UpdateTaskStatus(created.ID, task.StatusCancelled); err != nil {
		t.Fatal(err)
	}
	_, err = f.api.DistributeTask(f.ctx, created.ID)
	if ErrorKind(err) != KindConflict {
		t.Errorf("non-pending task: kind = %s", ErrorKind(err))
	}

	// No worker can match these skills.
	hopeless, err := f.api.CreateTask(task.Input{Title: "t2", EstimatedHours: 1, RequiredSkills: []string{"welding"}})
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.api.DistributeTask(f.ctx, hopeless.ID)
	if ErrorKind(err) != KindNoViableAgent {
		t.Errorf("hopeless task: kind = %s", ErrorKind(err))
	}
	got, _ := f.api.GetTask(hopeless.ID)
	if got.Status != task.StatusPending {
		t.Errorf("failed distribution must leave the task pending, got %s", got.Status)
	}
}

func TestUpdateTaskStatusLifecycle(t *testing.T) {
	f := newFixture(t)
	created, err := f.api.CreateTask(task.Input{Title: "t", EstimatedHours: 20, RequiredSkills: []string{"technical"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.api.DistributeTask(f.ctx, created.ID); err != nil {
		t.Fatal(err)
	}

	got, err := f.api.UpdateTaskStatus(created.ID, task.StatusInProgress)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != task.StatusInProgress {
		t.Errorf("status = %s", got.Status)
	}

	ctx, _ := f.kb.GetAgentContext("a1")
	if ctx.Utilization != 0.5 {
		t.Errorf("utilization = %v, want 0.5", ctx.Utilization)
	}

	if _, err := f.api.UpdateTaskStatus(created.ID, task.StatusCompleted); err != nil {
		t.Fatal(err)
	}
	ctx, _ = f.kb.GetAgentContext("a1")
	if ctx.Utilization != 0 {
		t.Errorf("utilization after completion = %v, want 0", ctx.Utilization)
	}

	// Illegal transition.
	_, err = f.api.UpdateTaskStatus(created.ID, task.StatusInProgress)
	if ErrorKind(err) != KindConflict {
		t.Errorf("illegal transition: kind = %s", ErrorKind(err))
	}

	// Unknown status string.
	_, err = f.api.UpdateTaskStatus(created.ID, task.Status("bogus"))
	if ErrorKind(err) != KindInvalidArgument {
		t.Errorf("bogus status: kind = %s", ErrorKind(err))
	}
}

func TestUpdateTaskStatusRejectsDirectAssigned(t *testing.T) {
	f := newFixture(t)
	created, err := f.api.CreateTask(task.Input{Title: "t", EstimatedHours: 1})
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.api.UpdateTaskStatus(created.ID, task.StatusAssigned)
	if ErrorKind(err) != KindInvalidArgument {
		t.Fatalf("direct assigned: kind = %s", ErrorKind(err))
	}

	got, err := f.api.GetTask(created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != task.StatusPending || got.AssignedTo != "" {
		t.Errorf("task mutated: status=%s assigned_to=%q", got.Status, got.AssignedTo)
	}
	if _, err := f.api.GetAssignment(created.ID); ErrorKind(err) != KindNotFound {
		t.Errorf("phantom assignment: kind = %s", ErrorKind(err))
	}
}

func TestUpdateAgentPatch(t *testing.T) {
	f := newFixture(t)

	name := "Sam Rivera"
	avail := false
	caps := skb.Capabilities{TechnicalSkills: map[string]float64{"design": 0.9}}
	gen := config.GeneratorConfig{Kind: config.GeneratorFallback}

	info, err := f.api.UpdateAgent("a1", AgentPatch{
		PersonName:        &name,
		Capabilities:      &caps,
		IsAvailable:       &avail,
		ResponseGenerator: &gen,
	})
	if err != nil {
		t.Fatalf("UpdateAgent: %v", err)
	}
	if info.PersonName != "Sam Rivera" {
		t.Errorf("name = %q", info.PersonName)
	}

	got, _ := f.kb.GetAgentCapabilities("a1")
	if got.TechnicalSkills["design"] != 0.9 {
		t.Errorf("capabilities not applied: %+v", got)
	}
	ctx, _ := f.kb.GetAgentContext("a1")
	if ctx.IsAvailable {
		t.Error("availability not applied")
	}

	_, err = f.api.UpdateAgent("ghost", AgentPatch{PersonName: &name})
	if ErrorKind(err) != KindNotFound {
		t.Errorf("unknown agent: kind = %s", ErrorKind(err))
	}

	empty := ""
	_, err = f.api.UpdateAgent("a1", AgentPatch{PersonName: &empty})
	if ErrorKind(err) != KindInvalidArgument {
		t.Errorf("empty name: kind = %s", ErrorKind(err))
	}
}

func TestAgentDirectory(t *testing.T) {
	f := newFixture(t)

	agents := f.api.ListAgents()
	if len(agents) != 2 {
		t.Fatalf("agents = %d, want 2", len(agents))
	}

	info, err := f.api.GetAgent("a1")
	if err != nil {
		t.Fatal(err)
	}
	if info.Role != skb.RoleWorker {
		t.Errorf("role = %s", info.Role)
	}

	_, err = f.api.GetAgent("nope")
	if ErrorKind(err) != KindNotFound {
		t.Errorf("kind = %s", ErrorKind(err))
	}
}

func TestMessageHistoryExposed(t *testing.T) {
	f := newFixture(t)
	created, err := f.api.CreateTask(task.Input{Title: "t", EstimatedHours: 1, RequiredSkills: []string{"technical"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.api.DistributeTask(f.ctx, created.ID); err != nil {
		t.Fatal(err)
	}

	history := f.api.MessageHistory(created.ID)
	if len(history) < 2 {
		t.Errorf("expected at least consultation and response in the log, got %d", len(history))
	}
}
