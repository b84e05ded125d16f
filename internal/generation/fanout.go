package generation

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"planstream/internal/logging"
	"planstream/internal/types"
)

// Coordinator fans one generator out across a set of phases, each in its own
// goroutine with an isolated failure domain.
type Coordinator struct {
	gen   *Generator
	limit int
}

// NewCoordinator creates a fan-out coordinator. limit bounds the number of
// concurrently streaming phases; zero means unbounded.
func NewCoordinator(gen *Generator, limit int) *Coordinator {
	return &Coordinator{gen: gen, limit: limit}
}

// GenerateAll runs one generation per phase name concurrently and returns
// the successful results keyed by phase name. Best-effort by design: a phase
// that fails or is cancelled is simply absent from the mapping and never
// aborts its siblings. Callers needing the failure list must consult the
// store's AllStates, not the returned mapping.
func (c *Coordinator) GenerateAll(ctx context.Context, plan *types.PlanSpec, phaseNames []string, observer TokenObserver, opts types.GenerationOptions) map[string]string {
	if phaseNames == nil && plan != nil {
		phaseNames = plan.PhaseNames()
	}

	logging.Generation("fan-out across %d phases (limit=%d)", len(phaseNames), c.limit)

	var (
		mu      sync.Mutex
		results = make(map[string]string, len(phaseNames))
		group   errgroup.Group
	)
	if c.limit > 0 {
		group.SetLimit(c.limit)
	}

	for _, name := range phaseNames {
		group.Go(func() error {
			text, err := c.gen.Generate(ctx, name, plan, observer, opts)
			if err != nil {
				// Terminal state already recorded in the store; the mapping
				// stays success-only.
				logging.GenerationWarn("fan-out: phase %s dropped from results: %v", name, err)
				return nil
			}
			mu.Lock()
			results[name] = text
			mu.Unlock()
			return nil
		})
	}

	// Tasks never return errors; Wait is purely a join.
	_ = group.Wait()

	logging.Generation("fan-out finished: %d/%d phases succeeded", len(results), len(phaseNames))
	return results
}

// Cancel forwards a per-phase cancellation to the generator.
func (c *Coordinator) Cancel(phaseName string) {
	c.gen.Cancel(phaseName)
}
