// internal/rg/fallback.go
package rg

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Fallback produces deterministic template text from the persona context
// alone. It is the correctness floor of the protocol: it always succeeds
// and never consults external state.
type Fallback struct{}

// NewFallback returns the deterministic template generator
func NewFallback() *Fallback {
	return &Fallback{}
}

// Generate renders template text for the prompt. The output depends only
// on the persona context, so repeated calls are identical.
func (f *Fallback) Generate(_ context.Context, prompt string, pc PersonaContext) (string, Status, error) {
	name := pc.PersonName
	if name == "" {
		name = pc.AgentID
	}
	if name == "" {
		name = "This agent"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s notes: ", name)

	if pc.TaskType != "" {
		fmt.Fprintf(&b, "this is %s work", strings.ToLower(pc.TaskType))
	} else {
		b.WriteString("this is general work")
	}

	if relevant := f.relevantSkills(pc); len(relevant) > 0 {
		fmt.Fprintf(&b, "; relevant strengths: %s", strings.Join(relevant, ", "))
	} else if len(pc.RequiredSkills) > 0 {
		fmt.Fprintf(&b, "; limited background in %s", strings.Join(pc.RequiredSkills, ", "))
	}

	if f.prefersType(pc) {
		b.WriteString("; this matches preferred task types")
	}
	b.WriteString(".")

	return b.String(), StatusFallback, nil
}

// relevantSkills lists required skills the persona rates at 0.5 or above,
// sorted for determinism.
func (f *Fallback) relevantSkills(pc PersonaContext) []string {
	var out []string
	for _, s := range pc.RequiredSkills {
		if pc.Skills[s] >= 0.5 {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func (f *Fallback) prefersType(pc PersonaContext) bool {
	for _, t := range pc.PreferredTaskTypes {
		if strings.EqualFold(t, pc.TaskType) {
			return true
		}
	}
	return false
}
