package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stratus-io/stratus/internal/engine"
	"github.com/stratus-io/stratus/internal/eval"
)

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate the configuration",
	Long: `Evaluates the configuration and checks it for problems: malformed
resource names, duplicate addresses, references to undeclared resources
and dependency cycles.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
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

	if err := engine.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("configuration is not valid:\n%w", err)
	}

	// A cycle is a validation failure even though planning detects it too.
	if _, err := engine.BuildDAG(engine.ExpandForEach(cfg.Resources)); err != nil {
		return fmt.Errorf("configuration is not valid: %w", err)
	}

	fmt.Printf("Configuration is valid. %d resource(s) declared.\n", len(cfg.Resources))
	return nil
}
