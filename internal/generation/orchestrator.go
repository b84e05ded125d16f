package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"planstream/internal/logging"
	"planstream/internal/phase"
	"planstream/internal/prompt"
	"planstream/internal/types"
)

// Generator drives one phase's generation end-to-end: prompt construction,
// store transitions, token forwarding, and cooperative cancellation.
type Generator struct {
	store    *phase.Store
	backend  Backend
	prompts  PromptBuilder
	registry *cancelRegistry
}

// NewGenerator wires a generator to its store and backend. A nil builder
// falls back to the default phase prompt.
func NewGenerator(store *phase.Store, backend Backend, builder PromptBuilder) *Generator {
	if builder == nil {
		builder = prompt.BuildPhasePrompt
	}
	return &Generator{
		store:    store,
		backend:  backend,
		prompts:  builder,
		registry: newCancelRegistry(),
	}
}

// Store exposes the state store for observers and callers that need to
// inspect terminal states after best-effort fan-out.
func (g *Generator) Store() *phase.Store {
	return g.store
}

// Generate runs a fresh generation for one phase. The returned error is nil
// on success, satisfies errors.Is(err, ErrCancelled) when the attempt was
// cancelled, and is any other error for a backend failure; the store ends in
// the matching terminal state before the call returns.
func (g *Generator) Generate(ctx context.Context, phaseName string, plan *types.PlanSpec, observer TokenObserver, opts types.GenerationOptions) (string, error) {
	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	att, err := g.registry.acquire(phaseName, cancel)
	if err != nil {
		return "", err
	}
	defer g.registry.release(phaseName)

	promptText := g.prompts(phaseName, plan, nil)
	reqCtx := types.NewRequestContext(opts.Model, planSummary(plan), false)

	if err := g.store.Initialize(phaseName, promptText, reqCtx); err != nil {
		return "", err
	}

	logging.Generation("phase %s: generation started (request=%s)", phaseName, reqCtx.RequestID)
	return g.stream(genCtx, att, phaseName, promptText, observer, opts)
}

// RegenerateWithSteering records the user's critique, resets the phase, and
// re-generates with a prompt that carries the feedback. Valid only from a
// terminal state.
func (g *Generator) RegenerateWithSteering(ctx context.Context, phaseName string, plan *types.PlanSpec, feedback types.SteeringFeedback, observer TokenObserver, opts types.GenerationOptions) (string, error) {
	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	att, err := g.registry.acquire(phaseName, cancel)
	if err != nil {
		return "", err
	}
	defer g.registry.release(phaseName)

	if err := g.store.RecordSteeringFeedback(phaseName, feedback); err != nil {
		return "", err
	}
	if err := g.store.ResetForRegeneration(phaseName); err != nil {
		return "", err
	}

	promptText := g.prompts(phaseName, plan, &feedback)
	reqCtx := types.NewRequestContext(opts.Model, planSummary(plan), true)
	if err := g.store.CaptureGenerationContext(phaseName, promptText, reqCtx); err != nil {
		return "", err
	}

	logging.Generation("phase %s: steered regeneration started (request=%s)", phaseName, reqCtx.RequestID)
	return g.stream(genCtx, att, phaseName, promptText, observer, opts)
}

// Cancel signals the active generation for phaseName to stop at its next
// token. A no-op when nothing is in flight, including already-terminal
// phases.
func (g *Generator) Cancel(phaseName string) {
	g.registry.signal(phaseName)
}

// CancelAfter arranges a cancellation after d. Timeout is just "cancel after
// duration" layered on the same signal; there is no separate timeout
// primitive. The returned timer can stop the countdown.
func (g *Generator) CancelAfter(phaseName string, d time.Duration) *time.Timer {
	return time.AfterFunc(d, func() { g.Cancel(phaseName) })
}

// stream runs the backend call and translates its outcome into exactly one
// terminal store transition.
func (g *Generator) stream(ctx context.Context, att *attempt, phaseName, promptText string, observer TokenObserver, opts types.GenerationOptions) (string, error) {
	timer := logging.StartTimer(logging.CategoryGeneration, fmt.Sprintf("phase %s stream", phaseName))
	defer timer.Stop()

	appended := 0
	budgetHit := false

	onToken := func(token string) error {
		// Cancellation is cooperative: token delivery is the only place
		// control returns here, so this check bounds cancellation latency to
		// one token.
		if att.cancelled.Load() {
			return ErrCancelled
		}
		if opts.MaxTokens > 0 && appended >= opts.MaxTokens {
			budgetHit = true
			return errBudgetExhausted
		}
		if err := g.store.AppendContent(phaseName, token); err != nil {
			return err
		}
		appended++
		if observer != nil {
			observer(phaseName, token)
		}
		return nil
	}

	finalText, err := g.backend.Stream(ctx, promptText, onToken, opts)

	switch {
	case err == nil:
		if terr := g.store.UpdateStatus(phaseName, phase.StatusComplete); terr != nil {
			return "", terr
		}
		logging.Generation("phase %s: complete, %d tokens", phaseName, appended)
		return finalText, nil

	case budgetHit || errors.Is(err, errBudgetExhausted):
		// Budget ceiling reached: the accumulated content is the result.
		snap, serr := g.store.State(phaseName)
		if serr != nil {
			return "", serr
		}
		if terr := g.store.UpdateStatus(phaseName, phase.StatusComplete); terr != nil {
			return "", terr
		}
		logging.Generation("phase %s: token budget %d reached, completing with partial output", phaseName, opts.MaxTokens)
		return snap.Content, nil

	case att.cancelled.Load() || errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled):
		if terr := g.store.RecordCancellation(phaseName); terr != nil {
			logging.GenerationError("phase %s: recording cancellation failed: %v", phaseName, terr)
		}
		return "", fmt.Errorf("phase %q: %w", phaseName, ErrCancelled)

	default:
		if terr := g.store.RecordError(phaseName, err.Error()); terr != nil {
			logging.GenerationError("phase %s: recording error failed: %v", phaseName, terr)
		}
		logging.GenerationError("phase %s: backend failed: %v", phaseName, err)
		return "", fmt.Errorf("phase %q generation failed: %w", phaseName, err)
	}
}

func planSummary(plan *types.PlanSpec) string {
	if plan == nil {
		return ""
	}
	return plan.Summary
}
