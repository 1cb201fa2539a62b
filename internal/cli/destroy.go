package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stratus-io/stratus/internal/engine"
	"github.com/stratus-io/stratus/internal/eval"
	"github.com/stratus-io/stratus/internal/ir"
	"github.com/stratus-io/stratus/internal/provider"
)

var destroyAutoApprove bool

var destroyCmd = &cobra.Command{
	Use:   "destroy [path]",
	Short: "Destroy all managed infrastructure",
	Long: `Deletes every resource tracked in state, in reverse dependency order.
Resources with lifecycle.preventDestroy set in the configuration block
the operation.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval")
}

func runDestroy(cmd *cobra.Command, args []string) error {
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
	if len(currentState.Resources) == 0 {
		fmt.Println("Nothing to destroy.")
		return nil
	}

	registry := provider.NewRegistry()
	if err := loadStateProviders(registry, currentState); err != nil {
		return err
	}

	// The configuration is optional here; when present it contributes
	// preventDestroy lifecycles.
	var cfg *ir.Config
	evaluator := eval.NewEvaluator(wd)
	if loaded, err := evaluator.LoadConfig(ctx, entryPoint, nil); err == nil {
		cfg = loaded
	}

	eng := engine.NewEngine(registry)
	plan, err := eng.DestroyPlan(ctx, cfg, currentState)
	if err != nil {
		return fmt.Errorf("destroy planning failed: %w", err)
	}

	fmt.Println("Stratus will destroy the following resources:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !destroyAutoApprove && !confirm("\nDo you really want to destroy all resources?") {
		fmt.Println("Destroy cancelled.")
		return nil
	}

	applyErr := eng.ApplyPlanWithCallback(ctx, plan, currentState, printApplyEvent)

	if err := backend.Write(ctx, currentState); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	writeAuditLog(AuditEntry{
		Operation: "destroy",
		Changes:   auditChanges(plan),
		Error:     errString(applyErr),
	})

	if applyErr != nil {
		return fmt.Errorf("destroy failed: %w", applyErr)
	}
	fmt.Printf("\nDestroy complete! %d resource(s) destroyed.\n", plan.Summary.Delete)
	return nil
}
