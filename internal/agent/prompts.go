// internal/agent/prompts.go
package agent

import (
	"fmt"
	"strings"

	"github.com/TEAMTWIN/internal/task"
)

func assessmentPrompt(t *task.Task, a Assessment, skillMatch float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are assessing whether you can take on a task.\n")
	fmt.Fprintf(&b, "Task: %s (%s), priority %d, estimated %.1f hours.\n", t.Title, t.Type, t.Priority, t.EstimatedHours)
	if len(t.RequiredSkills) > 0 {
		fmt.Fprintf(&b, "Required skills: %s.\n", strings.Join(t.RequiredSkills, ", "))
	}
	fmt.Fprintf(&b, "Your numbers: skill match %.2f, confidence %.2f, current utilization %.0f%%.\n",
		skillMatch, a.Confidence, a.Utilization*100)
	if len(a.Concerns) > 0 {
		fmt.Fprintf(&b, "Concerns: %s.\n", strings.Join(a.Concerns, ", "))
	}
	if a.CanHandle {
		b.WriteString("You concluded you can handle it. Explain briefly, in your own voice, why.")
	} else {
		b.WriteString("You concluded you cannot take it now. Explain briefly, in your own voice, why not.")
	}
	return b.String()
}

// assessmentFallback is the deterministic rationale used when generation
// fails; the assessment stays valid either way
func assessmentFallback(personName string, a Assessment) string {
	verdict := "can take this task"
	if !a.CanHandle {
		verdict = "cannot take this task right now"
	}
	s := fmt.Sprintf("%s %s (confidence %.2f, estimated %.1fh, utilization %.0f%%)",
		personName, verdict, a.Confidence, a.EstimatedTime, a.Utilization*100)
	if len(a.Concerns) > 0 {
		s += "; concerns: " + strings.Join(a.Concerns, ", ")
	}
	return s
}

func turnPrompt(turn Turn, peers []Assessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are negotiating with teammates over who takes a task (round %d).\n", turn.Round)
	for _, p := range peers {
		fmt.Fprintf(&b, "Peer %s: confidence %.2f, utilization %.0f%%.\n", p.AgentID, p.Confidence, p.Utilization*100)
	}
	switch turn.Position {
	case PositionClaim:
		b.WriteString("You decided to claim the task. State your claim briefly, in your own voice.")
	case PositionDefer:
		fmt.Fprintf(&b, "You decided to defer to %s. Say so briefly, in your own voice.", turn.DeferredTo)
	default:
		b.WriteString("You would take it if nobody better steps up. Say so briefly, in your own voice.")
	}
	return b.String()
}

func turnFallback(personName string, turn Turn) string {
	switch turn.Position {
	case PositionClaim:
		return fmt.Sprintf("%s claims the task (confidence %.2f, utilization %.0f%%)",
			personName, turn.SelfConfidence, turn.SelfUtilization*100)
	case PositionDefer:
		return fmt.Sprintf("%s defers to %s, who is better placed for this", personName, turn.DeferredTo)
	default:
		return fmt.Sprintf("%s can take the task if needed (confidence %.2f)", personName, turn.SelfConfidence)
	}
}
