// internal/task/types_test.go
package task

import (
	"testing"
	"time"
)

func TestNewNormalizesInput(t *testing.T) {
	tk, err := New(Input{
		Title:          "Update API docs",
		Type:           "Technical content",
		Priority:       42,
		EstimatedHours: 3,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if tk.ID == "" {
		t.Error("expected generated ID")
	}
	if tk.Priority != 10 {
		t.Errorf("priority not clamped: got %d", tk.Priority)
	}
	if tk.Description != "Task: Update API docs" {
		t.Errorf("default description wrong: %q", tk.Description)
	}
	if tk.Status != StatusPending {
		t.Errorf("new task should be pending, got %s", tk.Status)
	}
	want := []string{"documentation", "technical"}
	if len(tk.RequiredSkills) != len(want) {
		t.Fatalf("inferred skills = %v, want %v", tk.RequiredSkills, want)
	}
	for i, s := range want {
		if tk.RequiredSkills[i] != s {
			t.Errorf("inferred skills = %v, want %v", tk.RequiredSkills, want)
		}
	}
	if tk.UpdatedAt.Before(tk.CreatedAt) {
		t.Error("updated_at must not precede created_at")
	}
}

func TestNewRejectsInvalidInput(t *testing.T) {
	if _, err := New(Input{Title: "   "}); err == nil {
		t.Error("empty title should be rejected")
	}
	if _, err := New(Input{Title: "x", EstimatedHours: -1}); err == nil {
		t.Error("negative hours should be rejected")
	}
}

func TestClampPriority(t *testing.T) {
	cases := []struct{ in, want int }{
		{-5, 1}, {0, 1}, {1, 1}, {5, 5}, {10, 10}, {11, 10}, {100, 10},
	}
	for _, c := range cases {
		if got := ClampPriority(c.in); got != c.want {
			t.Errorf("ClampPriority(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestLifecycleTransitions(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusAssigned},
		{StatusPending, StatusCancelled},
		{StatusAssigned, StatusInProgress},
		{StatusAssigned, StatusCancelled},
		{StatusInProgress, StatusCompleted},
		{StatusInProgress, StatusFailed},
	}
	for _, c := range allowed {
		tk := &Task{Status: c.from}
		if err := tk.TransitionTo(c.to); err != nil {
			t.Errorf("transition %s -> %s should be allowed: %v", c.from, c.to, err)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusPending, StatusInProgress},
		{StatusPending, StatusCompleted},
		{StatusAssigned, StatusCompleted},
		{StatusInProgress, StatusPending},
		{StatusInProgress, StatusCancelled},
		{StatusCompleted, StatusPending},
		{StatusCompleted, StatusFailed},
		{StatusFailed, StatusInProgress},
		{StatusCancelled, StatusAssigned},
	}
	for _, c := range denied {
		tk := &Task{Status: c.from}
		if err := tk.TransitionTo(c.to); err == nil {
			t.Errorf("transition %s -> %s should be rejected", c.from, c.to)
		}
		if tk.Status != c.from {
			t.Errorf("failed transition must not change status, got %s", tk.Status)
		}
	}
}

func TestTransitionRefreshesUpdatedAt(t *testing.T) {
	tk := &Task{Status: StatusPending, UpdatedAt: time.Now().Add(-time.Hour)}
	before := tk.UpdatedAt
	if err := tk.TransitionTo(StatusAssigned); err != nil {
		t.Fatal(err)
	}
	if !tk.UpdatedAt.After(before) {
		t.Error("updated_at not refreshed on transition")
	}
}

func TestCloneIsDeep(t *testing.T) {
	tk, err := New(Input{Title: "t", Type: "backend", EstimatedHours: 1, Priority: 5,
		Metadata: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatal(err)
	}
	c := tk.Clone()
	c.Metadata["k"] = "changed"
	c.RequiredSkills[0] = "changed"
	if tk.Metadata["k"] != "v" {
		t.Error("clone shares metadata map")
	}
	if tk.RequiredSkills[0] == "changed" {
		t.Error("clone shares skills slice")
	}
}

func TestNormalizeSkills(t *testing.T) {
	got := NormalizeSkills([]string{"Technical", "  ", "technical", "Backend"})
	want := []string{"backend", "technical"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}
