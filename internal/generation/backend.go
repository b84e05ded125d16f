// Package generation drives phase text generation against a streaming model
// backend: one orchestrator per store, cooperative per-phase cancellation,
// and a fan-out coordinator for concurrent multi-phase runs.
package generation

import (
	"context"
	"errors"

	"planstream/internal/types"
)

// Backend is the streaming model capability the orchestrator consumes.
// Implementations live in internal/backend; tests use scripted fakes.
type Backend interface {
	// Stream generates text for prompt, invoking onToken once per incremental
	// fragment in generation order. A non-nil error returned by onToken must
	// abort the stream and propagate (possibly wrapped) as Stream's error.
	// Any other failure must surface as a distinguishable error.
	Stream(ctx context.Context, prompt string, onToken func(token string) error, opts types.GenerationOptions) (string, error)
}

// PromptBuilder is the pure prompt-construction collaborator. feedback is
// nil for first attempts and non-nil for steered regenerations.
type PromptBuilder func(phaseName string, plan *types.PlanSpec, feedback *types.SteeringFeedback) string

// TokenObserver receives every token after it has been recorded in the
// store. Called from the generating goroutine; implementations must be
// safe for concurrent calls when used with the fan-out coordinator.
type TokenObserver func(phaseName, token string)

var (
	// ErrCancelled is the distinguishable cancellation outcome. The phase is
	// left Interrupted with its partial content preserved.
	ErrCancelled = errors.New("generation cancelled")

	// ErrGenerationActive is returned when a second generation is started
	// for a phase that already has one in flight.
	ErrGenerationActive = errors.New("generation already active for phase")

	// errBudgetExhausted aborts the backend stream once the token budget
	// ceiling is reached. Never escapes this package.
	errBudgetExhausted = errors.New("token budget exhausted")
)
