// internal/task/views.go
package task

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// APIRequest is the inbound wire view used by external callers creating tasks
type APIRequest struct {
	Title          string            `json:"title"`
	Description    string            `json:"description,omitempty"`
	TaskType       string            `json:"task_type,omitempty"`
	Priority       int               `json:"priority"`
	EstimatedHours float64           `json:"estimated_hours"`
	RequiredSkills []string          `json:"required_skills,omitempty"`
	Deadline       *time.Time        `json:"deadline,omitempty"`
	Dependencies   []string          `json:"dependencies,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// APIResponse is the compact outbound view returned by the task API
type APIResponse struct {
	TaskID        string    `json:"task_id"`
	Title         string    `json:"title"`
	Status        Status    `json:"status"`
	AssignedAgent string    `json:"assigned_agent,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Display is the external display view used by board-style integrations
type Display struct {
	ID       int    `json:"id"`
	Header   string `json:"header"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Target   string `json:"target"`
	Limit    string `json:"limit"`
	Reviewer string `json:"reviewer"`
}

// displayStatus maps lifecycle statuses to board column labels
var displayStatus = map[Status]string{
	StatusPending:    "Pending",
	StatusAssigned:   "Assigned",
	StatusInProgress: "In Process",
	StatusCompleted:  "Done",
	StatusFailed:     "Failed",
	StatusCancelled:  "Cancelled",
}

var displayStatusReverse = func() map[string]Status {
	m := make(map[string]Status, len(displayStatus))
	for k, v := range displayStatus {
		m[v] = k
	}
	return m
}()

// UnassignedReviewer is shown when a display-view task has no assignee
const UnassignedReviewer = "Assign reviewer"

// displayIDs assigns each task a stable integer ID for the process lifetime
var displayIDs = struct {
	mu   sync.Mutex
	next int
	byID map[string]int
	rev  map[int]string
}{next: 1, byID: make(map[string]int), rev: make(map[int]string)}

func displayIDFor(taskID string) int {
	displayIDs.mu.Lock()
	defer displayIDs.mu.Unlock()
	if id, ok := displayIDs.byID[taskID]; ok {
		return id
	}
	id := displayIDs.next
	displayIDs.next++
	displayIDs.byID[taskID] = id
	displayIDs.rev[id] = taskID
	return id
}

func taskIDForDisplay(id int) string {
	displayIDs.mu.Lock()
	defer displayIDs.mu.Unlock()
	return displayIDs.rev[id]
}

// ToAPIRequest projects the task onto the API request view
func (t *Task) ToAPIRequest() APIRequest {
	return APIRequest{
		Title:          t.Title,
		Description:    t.Description,
		TaskType:       t.Type,
		Priority:       t.Priority,
		EstimatedHours: t.EstimatedHours,
		RequiredSkills: append([]string(nil), t.RequiredSkills...),
		Deadline:       t.Deadline,
		Dependencies:   append([]string(nil), t.Dependencies...),
		Metadata:       t.Metadata,
	}
}

// FromAPIRequest reconstructs a canonical task from the request view.
// Fields absent from the view take their defaults.
func FromAPIRequest(r APIRequest) (*Task, error) {
	return New(Input{
		Title:          r.Title,
		Description:    r.Description,
		Type:           r.TaskType,
		Priority:       r.Priority,
		EstimatedHours: r.EstimatedHours,
		RequiredSkills: r.RequiredSkills,
		Dependencies:   r.Dependencies,
		Deadline:       r.Deadline,
		Metadata:       r.Metadata,
	})
}

// ToAPIResponse projects the task onto the API response view
func (t *Task) ToAPIResponse() APIResponse {
	return APIResponse{
		TaskID:        t.ID,
		Title:         t.Title,
		Status:        t.Status,
		AssignedAgent: t.AssignedTo,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// FromAPIResponse reconstructs a partial canonical task from the response view
func FromAPIResponse(r APIResponse) *Task {
	return &Task{
		ID:         r.TaskID,
		Title:      r.Title,
		Status:     r.Status,
		AssignedTo: r.AssignedAgent,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		Metadata:   make(map[string]string),
	}
}

// ToDisplay projects the task onto the external display view
func (t *Task) ToDisplay() Display {
	reviewer := t.AssignedTo
	if reviewer == "" {
		reviewer = UnassignedReviewer
	}
	return Display{
		ID:       displayIDFor(t.ID),
		Header:   t.Title,
		Type:     t.Type,
		Status:   displayStatus[t.Status],
		Target:   strconv.Itoa(t.Priority),
		Limit:    strconv.Itoa(int(t.EstimatedHours)),
		Reviewer: reviewer,
	}
}

// FromDisplay reconstructs a partial canonical task from the display view
func FromDisplay(d Display) (*Task, error) {
	status, ok := displayStatusReverse[d.Status]
	if !ok {
		return nil, fmt.Errorf("unknown display status: %q", d.Status)
	}
	priority, err := strconv.Atoi(d.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid display target: %w", err)
	}
	hours, err := strconv.Atoi(d.Limit)
	if err != nil {
		return nil, fmt.Errorf("invalid display limit: %w", err)
	}
	assignedTo := d.Reviewer
	if assignedTo == UnassignedReviewer {
		assignedTo = ""
	}
	return &Task{
		ID:             taskIDForDisplay(d.ID),
		Title:          d.Header,
		Type:           d.Type,
		Status:         status,
		Priority:       priority,
		EstimatedHours: float64(hours),
		AssignedTo:     assignedTo,
		Metadata:       make(map[string]string),
	}, nil
}
