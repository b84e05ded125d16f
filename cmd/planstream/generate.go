package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"planstream/internal/backend"
	"planstream/internal/config"
	"planstream/internal/generation"
	"planstream/internal/observe"
	"planstream/internal/phase"
	"planstream/internal/types"
)

var (
	planPath   string
	phaseNames []string
	maxTokens  int
	fanLimit   int
)

// generateCmd runs generations for a plan's phases.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate phase documents from a plan file",
	Long: `Loads a YAML plan and streams one generation per phase.

With a single phase (--phases name) tokens stream straight to stdout. With
multiple phases the generations fan out concurrently and progress is
reported as status transitions; failed phases never abort their siblings.

Ctrl-C cancels cooperatively: every in-flight phase is marked interrupted
and its partial output is kept and reported.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&planPath, "plan", "", "plan YAML file (required)")
	generateCmd.Flags().StringSliceVar(&phaseNames, "phases", nil, "subset of phases to generate (default: all)")
	generateCmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "per-phase token ceiling (0 = config value)")
	generateCmd.Flags().IntVar(&fanLimit, "concurrency", 0, "max concurrently streaming phases (0 = config value)")
	_ = generateCmd.MarkFlagRequired("plan")
}

// runtime bundles the wired components shared by generate and regenerate.
type runtime struct {
	cfg     *config.Config
	plan    *types.PlanSpec
	gen     *generation.Generator
	watcher *config.Watcher
}

func (r *runtime) close() {
	if r.watcher != nil {
		r.watcher.Stop()
	}
}

// options builds per-call generation options from config plus flags.
func (r *runtime) options() types.GenerationOptions {
	opts := types.GenerationOptions{
		Model:     r.cfg.Backend.Model,
		MaxTokens: r.cfg.Generation.MaxTokens,
	}
	if maxTokens > 0 {
		opts.MaxTokens = maxTokens
	}
	if r.cfg.Generation.Temperature > 0 {
		opts.Extra = map[string]interface{}{"temperature": r.cfg.Generation.Temperature}
	}
	return opts
}

// setupRuntime loads config and plan, builds the backend, store and
// generator, and starts the config reload watcher.
func setupRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	plan, err := types.LoadPlan(planPath)
	if err != nil {
		return nil, err
	}

	be, err := backend.New(ctx, backend.Config{
		Provider: cfg.Backend.Provider,
		APIKey:   cfg.Backend.APIKey,
		BaseURL:  cfg.Backend.BaseURL,
		Model:    cfg.Backend.Model,
		Timeout:  cfg.BackendTimeout(10 * time.Minute),
		SiteName: cfg.Name,
	})
	if err != nil {
		return nil, err
	}

	store, err := phase.NewStore(plan.PhaseNames())
	if err != nil {
		return nil, err
	}

	watcher, err := config.NewWatcher(resolvedConfigPath(), nil)
	if err != nil {
		logger.Warn("config watcher unavailable", zap.Error(err))
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher failed to start", zap.Error(err))
	}

	return &runtime{
		cfg:     cfg,
		plan:    plan,
		gen:     generation.NewGenerator(store, be, nil),
		watcher: watcher,
	}, nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := setupRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	targets := phaseNames
	if len(targets) == 0 {
		targets = rt.plan.PhaseNames()
	}
	logger.Info("generation starting",
		zap.String("plan", planPath),
		zap.Strings("phases", targets),
		zap.String("model", rt.cfg.Backend.Model))

	if len(targets) == 1 {
		return generateSingle(ctx, rt, targets[0])
	}
	return generateFanOut(ctx, rt, targets)
}

// generateSingle streams one phase's tokens straight to stdout.
func generateSingle(ctx context.Context, rt *runtime, name string) error {
	observer := func(_, token string) {
		fmt.Print(token)
	}

	_, err := rt.gen.Generate(ctx, name, rt.plan, observer, rt.options())
	fmt.Println()
	printStates(rt.gen.Store())
	if err != nil {
		// Interrupted output was already streamed; report the outcome
		// without failing the process for a user-requested cancel.
		if ctx.Err() != nil {
			logger.Warn("generation interrupted", zap.String("phase", name))
			return nil
		}
		return err
	}
	return nil
}

// generateFanOut runs the phases concurrently, reporting progress as status
// transitions instead of raw interleaved tokens.
func generateFanOut(ctx context.Context, rt *runtime, targets []string) error {
	var outMu sync.Mutex
	poller := observe.NewPoller(rt.gen.Store(), rt.cfg.ObserveInterval(500*time.Millisecond), func(tr observe.Transition) {
		outMu.Lock()
		fmt.Printf("  %-20s %s -> %s (%d tokens)\n", tr.Phase, tr.From, tr.To, tr.Snap.TokenCount)
		outMu.Unlock()
	})
	poller.Start(ctx)
	defer poller.Stop()

	limit := rt.cfg.Generation.Concurrency
	if fanLimit > 0 {
		limit = fanLimit
	}
	coord := generation.NewCoordinator(rt.gen, limit)
	results := coord.GenerateAll(ctx, rt.plan, targets, nil, rt.options())

	poller.Stop()
	printStates(rt.gen.Store())

	fmt.Printf("\n%d/%d phases generated\n", len(results), len(targets))
	for _, name := range sortedKeys(results) {
		fmt.Printf("\n===== %s =====\n%s\n", name, results[name])
	}

	if len(results) < len(targets) && ctx.Err() == nil {
		return fmt.Errorf("%d of %d phases failed", len(targets)-len(results), len(targets))
	}
	return nil
}

// printStates renders the final state table.
func printStates(store *phase.Store) {
	states := store.AllStates()

	fmt.Println("\nPhase results:")
	for _, name := range store.Names() {
		snap := states[name]
		line := fmt.Sprintf("  %-20s %-14s tokens=%-6d regens=%d", snap.Name, snap.Status, snap.TokenCount, snap.RegenerationCount)
		if snap.ErrorMessage != "" {
			line += "  error: " + snap.ErrorMessage
		}
		if snap.Status == phase.StatusInterrupted {
			line += fmt.Sprintf("  partial=%d bytes", len(snap.PartialContent))
		}
		fmt.Println(line)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
