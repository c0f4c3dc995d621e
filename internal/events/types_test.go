package events

import (
	"encoding/json"
	"testing"
)

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventTaskAssigned, "manager", "all", map[string]interface{}{"task_id": "t1"})

	if e.ID == "" {
		t.Error("event should get a generated id")
	}
	if e.CreatedAt.IsZero() {
		t.Error("event should get a timestamp")
	}
	if e.Type != EventTaskAssigned || e.Source != "manager" || e.Target != "all" {
		t.Errorf("event = %+v", e)
	}
}

func TestEventJSONRoundTrip(t *testing.T) {
	e := NewEvent(EventTaskStatusChanged, "api", "dashboard", map[string]interface{}{
		"task_id": "t1",
		"status":  "completed",
	})

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}

	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != e.ID || got.Type != e.Type {
		t.Errorf("round trip changed identity: %+v", got)
	}
	if got.Payload["status"] != "completed" {
		t.Errorf("payload = %v", got.Payload)
	}
}

func TestAllEventTypes(t *testing.T) {
	types := AllEventTypes()
	if len(types) != 4 {
		t.Fatalf("len = %d, want 4", len(types))
	}
	seen := make(map[EventType]bool)
	for _, et := range types {
		if seen[et] {
			t.Errorf("duplicate type %s", et)
		}
		seen[et] = true
	}
	if !seen[EventTaskCreated] || !seen[EventAgentUpdated] {
		t.Errorf("missing expected types: %v", types)
	}
}
