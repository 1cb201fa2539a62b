package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/stratus-io/stratus/internal/engine"
	"github.com/stratus-io/stratus/internal/eval"
	"github.com/stratus-io/stratus/internal/ir"
	"github.com/stratus-io/stratus/internal/provider"
)

var (
	applyAutoApprove     bool
	applyContinueOnError bool
	applyParallelism     int
	applyTargets         []string
	applyProperties      map[string]string
)

var applyCmd = &cobra.Command{
	Use:   "apply [path | plan-file]",
	Short: "Apply a configuration",
	Long: `Builds or changes infrastructure according to the configuration.

With a saved plan file (from 'stratus plan -out'), the recorded changes
are executed as-is. Otherwise a fresh plan is calculated and, after
approval, applied.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of plan before applying")
	applyCmd.Flags().BoolVar(&applyContinueOnError, "continue-on-error", false, "Keep applying independent resources after a failure")
	applyCmd.Flags().IntVar(&applyParallelism, "parallelism", 10, "Maximum number of concurrent resource operations")
	applyCmd.Flags().StringSliceVar(&applyTargets, "target", nil, "Limit the apply to a resource address (repeatable)")
	applyCmd.Flags().StringToStringVarP(&applyProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runApply(cmd *cobra.Command, args []string) error {
	var planFile string
	if len(args) > 0 && strings.HasSuffix(args[0], ".json") {
		planFile = args[0]
		args = args[1:]
	}

	wd, entryPoint, err := resolveProject(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	backend, err := newStateBackend(wd)
	if err != nil {
		return err
	}

	if err := backend.Lock(); err != nil {
		return err
	}
	defer backend.Unlock()

	currentState, err := backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	registry := provider.NewRegistry()
	if err := loadStateProviders(registry, currentState); err != nil {
		return err
	}

	var plan *ir.Plan
	var cfg *ir.Config
	if planFile != "" {
		plan, err = readPlanFile(planFile)
		if err != nil {
			return err
		}
		for _, change := range plan.Changes {
			if change.Desired != nil {
				if err := registry.LoadProvider(change.Desired.Provider); err != nil {
					return err
				}
			}
		}
	} else {
		evaluator := eval.NewEvaluator(wd)

		fmt.Print("Loading configuration... ")
		cfg, err = evaluator.LoadConfig(ctx, entryPoint, applyProperties)
		if err != nil {
			fmt.Println("FAILED")
			return fmt.Errorf("failed to load config: %w", err)
		}
		fmt.Println("OK")

		if err := loadRequiredProviders(registry, cfg); err != nil {
			return err
		}

		eng := engine.NewEngine(registry)
		fmt.Print("Calculating plan... ")
		plan, err = eng.CreatePlanWithTargets(ctx, cfg, currentState, applyTargets)
		if err != nil {
			fmt.Println("FAILED")
			return fmt.Errorf("plan generation failed: %w", err)
		}
		fmt.Println("OK")

		if err := reportPolicyFindings(ctx, wd, plan); err != nil {
			return err
		}
	}

	if plan.Summary.Total() == 0 {
		fmt.Println("No changes. Infrastructure is up-to-date.")
		return nil
	}

	fmt.Println("\nStratus will perform the following actions:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !applyAutoApprove && !confirm("\nDo you want to perform these actions?") {
		fmt.Println("Apply cancelled.")
		return nil
	}

	fmt.Printf("\nApplying %d change(s)...\n\n", plan.Summary.Total())

	eng := engine.NewEngine(registry)
	eng.ContinueOnError = applyContinueOnError
	eng.Parallelism = applyParallelism

	applyErr := eng.ApplyPlanWithCallback(ctx, plan, currentState, printApplyEvent)

	if applyErr == nil && len(plan.Outputs) > 0 {
		currentState.Outputs = engine.ResolveOutputs(plan.Outputs, currentState)
	}

	// Persist whatever succeeded, even on failure.
	if err := backend.Write(ctx, currentState); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	writeAuditLog(AuditEntry{
		Operation: "apply",
		Changes:   auditChanges(plan),
		Summary: map[string]int{
			"create": plan.Summary.Create, "update": plan.Summary.Update,
			"delete": plan.Summary.Delete, "replace": plan.Summary.Replace,
		},
		Error: errString(applyErr),
	})

	if applyErr != nil {
		return fmt.Errorf("apply failed: %w", applyErr)
	}

	fmt.Printf("\nApply complete! Resources: %d added, %d changed, %d destroyed.\n",
		plan.Summary.Create, plan.Summary.Update+plan.Summary.Replace, plan.Summary.Delete)

	if len(currentState.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		for k, v := range currentState.Outputs {
			fmt.Printf("  %s = %v\n", k, v)
		}
	}
	return nil
}

func printApplyEvent(ev engine.ApplyEvent) {
	switch ev.Status {
	case "started":
		fmt.Printf("%s: %s...\n", ev.Address, strings.ToLower(string(ev.Action)))
	case "completed":
		fmt.Printf("%s\n", colorize(ansiGreen, fmt.Sprintf("%s: done (%s)", ev.Address, ev.Elapsed.Round(time.Millisecond))))
	case "failed":
		fmt.Printf("%s\n", colorize(ansiRed, fmt.Sprintf("%s: failed: %v", ev.Address, ev.Err)))
	case "skipped":
		fmt.Printf("%s\n", colorize(ansiYellow, fmt.Sprintf("%s: skipped", ev.Address)))
	}
}

func auditChanges(plan *ir.Plan) []AuditChange {
	changes := make([]AuditChange, 0, len(plan.Changes))
	for _, c := range plan.Changes {
		changes = append(changes, AuditChange{Address: c.Address, Action: string(c.Action)})
	}
	return changes
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
