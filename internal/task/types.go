// internal/task/types.go
package task

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a task
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// validTransitions defines allowed status transitions. The lifecycle is
// one-way: pending -> assigned -> in_progress -> completed/failed, with
// cancellation possible only before work starts.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusFailed},
}

// IsValidStatus reports whether s is one of the defined statuses
func IsValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Task represents a unit of work in the system
type Task struct {
	ID             string            `json:"task_id"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Type           string            `json:"task_type"`
	Priority       int               `json:"priority"` // 1-10, clamped on ingress
	EstimatedHours float64           `json:"estimated_hours"`
	RequiredSkills []string          `json:"required_skills"`
	Status         Status            `json:"status"`
	AssignedTo     string            `json:"assigned_to,omitempty"`
	Dependencies   []string          `json:"dependencies,omitempty"` // accepted, not enforced
	Deadline       *time.Time        `json:"deadline,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Input carries the normalizable fields for creating a task
type Input struct {
	ID             string
	Title          string
	Description    string
	Type           string
	Priority       int
	EstimatedHours float64
	RequiredSkills []string
	Dependencies   []string
	Deadline       *time.Time
	Metadata       map[string]string
}

// ClampPriority clamps a priority value into the valid [1,10] range
func ClampPriority(p int) int {
	if p < 1 {
		return 1
	}
	if p > 10 {
		return 10
	}
	return p
}

// New normalizes the input and creates a task in pending status.
// Title must be non-empty and estimated hours non-negative; the priority
// is clamped, required skills are inferred from the task type when absent,
// and an ID is generated if none was supplied.
func New(in Input) (*Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("title is required")
	}
	if in.EstimatedHours < 0 {
		return nil, fmt.Errorf("estimated_hours must be non-negative")
	}

	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}

	description := in.Description
	if description == "" {
		description = "Task: " + in.Title
	}

	skills := NormalizeSkills(in.RequiredSkills)
	if len(skills) == 0 {
		skills = InferSkills(in.Type)
	}

	metadata := in.Metadata
	if metadata == nil {
		metadata = make(map[string]string)
	}

	now := time.Now()
	return &Task{
		ID:             id,
		Title:          in.Title,
		Description:    description,
		Type:           in.Type,
		Priority:       ClampPriority(in.Priority),
		EstimatedHours: in.EstimatedHours,
		RequiredSkills: skills,
		Status:         StatusPending,
		Dependencies:   append([]string(nil), in.Dependencies...),
		Deadline:       in.Deadline,
		CreatedAt:      now,
		UpdatedAt:      now,
		Metadata:       metadata,
	}, nil
}

// NormalizeSkills lowercases, deduplicates and sorts a skill set
func NormalizeSkills(skills []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// TransitionTo attempts to move the task to a new status
func (t *Task) TransitionTo(newStatus Status) error {
	if !IsValidStatus(newStatus) {
		return fmt.Errorf("unknown status: %s", newStatus)
	}
	for _, s := range validTransitions[t.Status] {
		if s == newStatus {
			t.Status = newStatus
			t.Touch()
			return nil
		}
	}
	return fmt.Errorf("invalid transition from %s to %s", t.Status, newStatus)
}

// CanTransitionTo reports whether the transition is allowed without applying it
func (t *Task) CanTransitionTo(newStatus Status) bool {
	for _, s := range validTransitions[t.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the task is in a final state
func (t *Task) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed || t.Status == StatusCancelled
}

// InFlight reports whether the task currently reserves agent capacity
func (t *Task) InFlight() bool {
	return t.Status == StatusAssigned || t.Status == StatusInProgress
}

// Touch refreshes the updated timestamp, keeping it monotonic
func (t *Task) Touch() {
	now := time.Now()
	if now.Before(t.UpdatedAt) {
		now = t.UpdatedAt
	}
	t.UpdatedAt = now
}

// Clone returns a deep copy of the task
func (t *Task) Clone() *Task {
	c := *t
	c.RequiredSkills = append([]string(nil), t.RequiredSkills...)
	c.Dependencies = append([]string(nil), t.Dependencies...)
	if t.Deadline != nil {
		d := *t.Deadline
		c.Deadline = &d
	}
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
