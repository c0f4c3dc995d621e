// internal/task/skills.go
package task

import "strings"

// skillRule maps task-type keywords to an inferred skill set
type skillRule struct {
	keywords []string
	skills   []string
}

// inferenceRules are checked in order; the first matching rule wins.
// More specific phrases come before generic ones, and data keywords
// outrank design so a type like "Database design" reads as backend work.
var inferenceRules = []skillRule{
	{[]string{"technical content"}, []string{"technical", "documentation"}},
	{[]string{"backend", "database"}, []string{"backend", "technical", "database"}},
	{[]string{"design", "visual"}, []string{"creative", "visual"}},
	{[]string{"planning"}, []string{"leadership", "coordination"}},
	{[]string{"review"}, []string{"review", "technical"}},
}

// InferSkills derives a required skill set from a free-form task type.
// Matching is deterministic, case-insensitive keyword containment; unknown
// types infer {general}.
func InferSkills(taskType string) []string {
	lower := strings.ToLower(taskType)
	for _, rule := range inferenceRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return NormalizeSkills(rule.skills)
			}
		}
	}
	return []string{"general"}
}
