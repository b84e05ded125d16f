// Package types provides shared type definitions used across planstream packages.
// This package exists to break import cycles between phase, generation, and backend.
// Types in this package should be foundational data structures with no complex dependencies.
package types

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// PLAN STRUCTURE
// =============================================================================

// PlanStep is a single ordered step inside a plan phase. Detail lines are
// optional sub-bullets elaborating the step.
type PlanStep struct {
	Description string   `yaml:"description"`
	Details     []string `yaml:"details,omitempty"`
}

// PhaseSpec describes one phase of a plan: what the generated artifact for
// that phase should cover. The core reads it, never writes it.
type PhaseSpec struct {
	Number      int        `yaml:"number"`
	Title       string     `yaml:"title"`
	Description string     `yaml:"description"`
	Steps       []PlanStep `yaml:"steps,omitempty"`
}

// PlanSpec is an ordered collection of phase descriptors plus an overall
// summary. It is the read-only input driving prompt construction.
type PlanSpec struct {
	Summary string      `yaml:"summary"`
	Phases  []PhaseSpec `yaml:"phases"`
}

// PhaseNames returns the phase titles in plan order.
func (p *PlanSpec) PhaseNames() []string {
	names := make([]string, 0, len(p.Phases))
	for _, ph := range p.Phases {
		names = append(names, ph.Title)
	}
	return names
}

// Phase returns the descriptor with the given title, or nil.
func (p *PlanSpec) Phase(title string) *PhaseSpec {
	for i := range p.Phases {
		if p.Phases[i].Title == title {
			return &p.Phases[i]
		}
	}
	return nil
}

// Validate checks structural soundness: at least one phase, unique non-empty
// titles, positive phase numbers.
func (p *PlanSpec) Validate() error {
	if len(p.Phases) == 0 {
		return fmt.Errorf("plan has no phases")
	}
	seen := make(map[string]bool, len(p.Phases))
	for i, ph := range p.Phases {
		if strings.TrimSpace(ph.Title) == "" {
			return fmt.Errorf("phase %d has an empty title", i+1)
		}
		if seen[ph.Title] {
			return fmt.Errorf("duplicate phase title %q", ph.Title)
		}
		seen[ph.Title] = true
		if ph.Number <= 0 {
			return fmt.Errorf("phase %q has invalid number %d", ph.Title, ph.Number)
		}
	}
	return nil
}

// LoadPlan reads a PlanSpec from a YAML file.
func LoadPlan(path string) (*PlanSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	var plan PlanSpec
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", path, err)
	}
	return &plan, nil
}

// =============================================================================
// STEERING FEEDBACK
// =============================================================================

// SteeringFeedback is structured user critique recorded before a guided
// regeneration: what was wrong, what should change, and any hard constraints.
type SteeringFeedback struct {
	Issue         string    `yaml:"issue" json:"issue"`
	DesiredChange string    `yaml:"desired_change" json:"desired_change"`
	Constraints   []string  `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	RecordedAt    time.Time `yaml:"recorded_at,omitempty" json:"recorded_at,omitempty"`
}

// IsZero reports whether no feedback content has been provided.
func (f SteeringFeedback) IsZero() bool {
	return f.Issue == "" && f.DesiredChange == "" && len(f.Constraints) == 0
}

// =============================================================================
// GENERATION REQUEST CONTEXT & OPTIONS
// =============================================================================

// RequestContext captures the inputs of one generation call so that a
// completed or failed attempt can be reproduced or audited later.
type RequestContext struct {
	RequestID   string    `json:"request_id"`
	Model       string    `json:"model,omitempty"`
	PlanSummary string    `json:"plan_summary,omitempty"`
	Regenerate  bool      `json:"regenerate,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// NewRequestContext builds a context with a fresh request ID.
func NewRequestContext(model, planSummary string, regenerate bool) RequestContext {
	return RequestContext{
		RequestID:   uuid.New().String(),
		Model:       model,
		PlanSummary: planSummary,
		Regenerate:  regenerate,
		SubmittedAt: time.Now(),
	}
}

// GenerationOptions carries the per-call knobs the orchestrator recognizes.
// Model and MaxTokens are interpreted here; Extra is passed through opaquely
// to the backend.
type GenerationOptions struct {
	Model     string
	MaxTokens int
	Extra     map[string]interface{}
}

// ExtraKeys returns the pass-through option keys in sorted order. Used for
// deterministic logging of opaque options.
func (o GenerationOptions) ExtraKeys() []string {
	keys := make([]string, 0, len(o.Extra))
	for k := range o.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
