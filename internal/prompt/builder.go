// Package prompt assembles generation prompts from a plan structure. Pure
// string construction: no side effects, no I/O, deterministic for a given
// input, so it can be swapped or golden-tested freely.
package prompt

import (
	"fmt"
	"strings"

	"planstream/internal/types"
)

// BuildPhasePrompt renders the prompt for one phase of a plan. When feedback
// is non-nil the prompt becomes a steered regeneration request that carries
// the user's critique.
func BuildPhasePrompt(phaseName string, plan *types.PlanSpec, feedback *types.SteeringFeedback) string {
	var b strings.Builder

	b.WriteString("You are a technical writing assistant producing one section of a project plan.\n\n")
	if plan != nil && plan.Summary != "" {
		fmt.Fprintf(&b, "Project summary: %s\n\n", plan.Summary)
	}

	var spec *types.PhaseSpec
	if plan != nil {
		spec = plan.Phase(phaseName)
	}
	if spec != nil {
		fmt.Fprintf(&b, "Write the full text for phase %d: %q.\n", spec.Number, spec.Title)
		if spec.Description != "" {
			fmt.Fprintf(&b, "Phase intent: %s\n", spec.Description)
		}
		if len(spec.Steps) > 0 {
			b.WriteString("\nThe phase must cover these steps in order:\n")
			for i, step := range spec.Steps {
				fmt.Fprintf(&b, "%d. %s\n", i+1, step.Description)
				for _, detail := range step.Details {
					fmt.Fprintf(&b, "   - %s\n", detail)
				}
			}
		}
	} else {
		fmt.Fprintf(&b, "Write the full text for the phase named %q.\n", phaseName)
	}

	if plan != nil && len(plan.Phases) > 1 {
		b.WriteString("\nSurrounding phases, for context only (do not write them):\n")
		for _, ph := range plan.Phases {
			if ph.Title == phaseName {
				continue
			}
			fmt.Fprintf(&b, "- Phase %d: %s\n", ph.Number, ph.Title)
		}
	}

	if feedback != nil && !feedback.IsZero() {
		b.WriteString("\nA previous draft of this phase was rejected. Revise accordingly.\n")
		if feedback.Issue != "" {
			fmt.Fprintf(&b, "Problem with the previous draft: %s\n", feedback.Issue)
		}
		if feedback.DesiredChange != "" {
			fmt.Fprintf(&b, "Requested change: %s\n", feedback.DesiredChange)
		}
		if len(feedback.Constraints) > 0 {
			b.WriteString("Hard constraints:\n")
			for _, c := range feedback.Constraints {
				fmt.Fprintf(&b, "- %s\n", c)
			}
		}
	}

	b.WriteString("\nRespond with the phase text only, no preamble.")
	return b.String()
}
