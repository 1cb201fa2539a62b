package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stratus-io/stratus/internal/engine"
	"github.com/stratus-io/stratus/internal/eval"
	"github.com/stratus-io/stratus/internal/provider"
)

var policyCheckCmd = &cobra.Command{
	Use:   "policy-check [path]",
	Short: "Evaluate policies against the current plan without applying",
	Long: `Builds a plan and evaluates every policy under .stratus/policies
against it, plus the built-in policies. Exits non-zero when an
error-severity policy denies the plan.`,
	RunE: runPolicyCheck,
}

func runPolicyCheck(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveProject(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	evaluator := eval.NewEvaluator(wd)
	cfg, err := evaluator.LoadConfig(ctx, entryPoint, nil)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	registry := provider.NewRegistry()
	if err := loadRequiredProviders(registry, cfg); err != nil {
		return err
	}

	backend, err := newStateBackend(wd)
	if err != nil {
		return err
	}
	currentState, err := backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	if err := loadStateProviders(registry, currentState); err != nil {
		return err
	}

	eng := engine.NewEngine(registry)
	plan, err := eng.CreatePlan(ctx, cfg, currentState)
	if err != nil {
		return fmt.Errorf("plan generation failed: %w", err)
	}

	if err := reportPolicyFindings(ctx, wd, plan); err != nil {
		return err
	}
	fmt.Println(colorize(ansiGreen, "All policies passed."))
	return nil
}
