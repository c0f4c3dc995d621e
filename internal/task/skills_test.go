// internal/task/skills_test.go
package task

import "testing"

func TestInferSkills(t *testing.T) {
	cases := []struct {
		taskType string
		want     []string
	}{
		{"Technical content", []string{"documentation", "technical"}},
		{"design", []string{"creative", "visual"}},
		{"visual identity", []string{"creative", "visual"}},
		{"planning", []string{"coordination", "leadership"}},
		{"sprint planning", []string{"coordination", "leadership"}},
		{"backend", []string{"backend", "database", "technical"}},
		{"database migration", []string{"backend", "database", "technical"}},
		// Data keywords outrank design when both appear in the type.
		{"Database design", []string{"backend", "database", "technical"}},
		{"review", []string{"review", "technical"}},
		{"something else", []string{"general"}},
		{"", []string{"general"}},
	}

	for _, c := range cases {
		got := InferSkills(c.taskType)
		if len(got) != len(c.want) {
			t.Errorf("InferSkills(%q) = %v, want %v", c.taskType, got, c.want)
			continue
		}
		for i := range c.want {
			if got[i] != c.want[i] {
				t.Errorf("InferSkills(%q) = %v, want %v", c.taskType, got, c.want)
				break
			}
		}
	}
}

func TestInferSkillsIsDeterministic(t *testing.T) {
	first := InferSkills("backend services")
	for i := 0; i < 10; i++ {
		again := InferSkills("backend services")
		for j := range first {
			if again[j] != first[j] {
				t.Fatalf("inference not deterministic: %v vs %v", again, first)
			}
		}
	}
}
