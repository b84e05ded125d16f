package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"planstream/internal/types"
)

var (
	steerIssue       string
	steerWant        string
	steerConstraints []string
	skipDraft        bool
)

// regenerateCmd demonstrates steered regeneration: draft a phase, then
// regenerate it with structured feedback folded into the prompt.
var regenerateCmd = &cobra.Command{
	Use:   "regenerate [phase]",
	Short: "Generate a phase, then regenerate it with steering feedback",
	Long: `Runs a draft generation for the phase, records the steering feedback
(--issue / --want / --constraint) and regenerates with the feedback folded
into the prompt. The final document replaces the draft; the regeneration
count and the recorded feedback show up in the result table.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegenerate,
}

func init() {
	regenerateCmd.Flags().StringVar(&planPath, "plan", "", "plan YAML file (required)")
	regenerateCmd.Flags().StringVar(&steerIssue, "issue", "", "what is wrong with the draft")
	regenerateCmd.Flags().StringVar(&steerWant, "want", "", "what the regeneration should change")
	regenerateCmd.Flags().StringArrayVar(&steerConstraints, "constraint", nil, "hard constraint (repeatable)")
	regenerateCmd.Flags().BoolVar(&skipDraft, "quiet-draft", false, "do not echo draft tokens")
	_ = regenerateCmd.MarkFlagRequired("plan")
}

func runRegenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	phaseName := args[0]

	feedback := types.SteeringFeedback{
		Issue:         steerIssue,
		DesiredChange: steerWant,
		Constraints:   steerConstraints,
	}
	if feedback.IsZero() {
		return fmt.Errorf("steering feedback required: pass --issue, --want or --constraint")
	}

	rt, err := setupRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	if rt.plan.Phase(phaseName) == nil {
		return fmt.Errorf("plan has no phase %q", phaseName)
	}

	logger.Info("draft generation starting", zap.String("phase", phaseName))

	observer := func(_, token string) {
		if !skipDraft {
			fmt.Print(token)
		}
	}
	if _, err := rt.gen.Generate(ctx, phaseName, rt.plan, observer, rt.options()); err != nil {
		return fmt.Errorf("draft generation failed: %w", err)
	}
	if !skipDraft {
		fmt.Println()
	}

	logger.Info("regenerating with steering",
		zap.String("phase", phaseName),
		zap.String("issue", feedback.Issue))
	fmt.Printf("\n----- regenerating %q with steering -----\n", phaseName)

	_, err = rt.gen.RegenerateWithSteering(ctx, phaseName, rt.plan, feedback,
		func(_, token string) { fmt.Print(token) }, rt.options())
	fmt.Println()
	printStates(rt.gen.Store())
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("regeneration interrupted", zap.String("phase", phaseName))
			return nil
		}
		return err
	}
	return nil
}
