package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/stratus-io/stratus/internal/engine"
	"github.com/stratus-io/stratus/internal/eval"
	"github.com/stratus-io/stratus/internal/ir"
	"github.com/stratus-io/stratus/internal/policy"
	"github.com/stratus-io/stratus/internal/provider"
)

var (
	planOutFile    string
	planTargets    []string
	planProperties map[string]string
)

var planCmd = &cobra.Command{
	Use:   "plan [path]",
	Short: "Generate an execution plan",
	Long: `Generates an execution plan showing what actions stratus will take
to reach the desired state defined in your configuration.

The plan shows:
  • Resources to be created
  • Resources to be updated or replaced (with property diffs)
  • Resources to be deleted`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planOutFile, "out", "o", "", "Write the plan to a file for later apply")
	planCmd.Flags().StringSliceVar(&planTargets, "target", nil, "Limit the plan to a resource address (repeatable)")
	planCmd.Flags().StringToStringVarP(&planProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveProject(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	evaluator := eval.NewEvaluator(wd)
	backend, err := newStateBackend(wd)
	if err != nil {
		return err
	}

	fmt.Print("Loading configuration... ")
	cfg, err := evaluator.LoadConfig(ctx, entryPoint, planProperties)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to load config: %w", err)
	}
	fmt.Println("OK")

	registry := provider.NewRegistry()
	if err := loadRequiredProviders(registry, cfg); err != nil {
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

	fmt.Print("Calculating plan... ")
	plan, err := eng.CreatePlanWithTargets(ctx, cfg, currentState, planTargets)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("plan generation failed: %w", err)
	}
	fmt.Println("OK")

	if err := reportPolicyFindings(ctx, wd, plan); err != nil {
		return err
	}

	if plan.Summary.Total() == 0 {
		fmt.Println("\nNo changes. Infrastructure is up-to-date.")
	} else {
		fmt.Println("\nStratus will perform the following actions:")
		renderPlanChanges(plan)
	}
	renderPlanSummary(plan)

	if planOutFile != "" {
		if err := writePlanFile(planOutFile, plan); err != nil {
			return err
		}
		fmt.Printf("\nPlan written to %s. Run 'stratus apply %s' to execute it.\n", planOutFile, planOutFile)
	}
	return nil
}

// reportPolicyFindings evaluates policies against the plan. Warnings are
// printed; error-severity violations fail the command.
func reportPolicyFindings(ctx context.Context, wd string, plan *ir.Plan) error {
	polEngine := policy.NewEngine()
	if err := polEngine.LoadDir(filepath.Join(wd, stratusDir(), "policies")); err != nil {
		return err
	}

	result, err := polEngine.EvaluatePlan(ctx, plan)
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}

	for _, v := range result.Violations {
		line := fmt.Sprintf("policy %s: %s", v.Policy, v.Message)
		if v.Severity == policy.SeverityError {
			fmt.Println(colorize(ansiRed, "✗ "+line))
		} else {
			fmt.Println(colorize(ansiYellow, "! "+line))
		}
	}
	if !result.Allowed {
		return fmt.Errorf("plan rejected by policy")
	}
	return nil
}

func writePlanFile(path string, plan *ir.Plan) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize plan: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write plan file: %w", err)
	}
	return nil
}

func readPlanFile(path string) (*ir.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file %s: %w", path, err)
	}
	var plan ir.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse plan file %s: %w", path, err)
	}
	return &plan, nil
}
