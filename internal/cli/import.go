package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stratus-io/stratus/internal/engine"
	"github.com/stratus-io/stratus/internal/eval"
	"github.com/stratus-io/stratus/internal/ir"
	"github.com/stratus-io/stratus/internal/provider"
)

var importCmd = &cobra.Command{
	Use:   "import <address> <id>",
	Short: "Adopt an existing object into state",
	Long: `Reads an object the provider already knows about and records it in
state under the given address. The address must match a resource declared in
the configuration so future plans can diff against it.

  stratus import net.VirtualNetwork.main vnet-prod-0042`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	addr, id := args[0], args[1]
	wd, entryPoint, err := resolveProject(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	evaluator := eval.NewEvaluator(wd)
	cfg, err := evaluator.LoadConfig(ctx, entryPoint, nil)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var res *ir.Resource
	for _, r := range engine.ExpandForEach(cfg.Resources) {
		if r.Addr() == addr {
			res = r
			break
		}
	}
	if res == nil {
		return fmt.Errorf("resource %q is not declared in the configuration", addr)
	}

	registry := provider.NewRegistry()
	if err := registry.LoadProvider(res.Provider); err != nil {
		return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
	}

	backend, err := newStateBackend(wd)
	if err != nil {
		return err
	}
	if err := backend.Lock(); err != nil {
		return err
	}
	defer backend.Unlock()

	st, err := backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	eng := engine.NewEngine(registry)
	if err := eng.Import(ctx, st, res, id); err != nil {
		return err
	}

	if err := backend.Write(ctx, st); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	writeAuditLog(AuditEntry{
		Operation: "import",
		Changes:   []AuditChange{{Address: addr, Action: "import"}},
	})
	fmt.Printf("%s imported with id %s. Run 'stratus plan' to see any pending changes.\n", addr, id)
	return nil
}
