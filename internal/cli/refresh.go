package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stratus-io/stratus/internal/engine"
	"github.com/stratus-io/stratus/internal/provider"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [path]",
	Short: "Reconcile state with real infrastructure",
	Long: `Reads every tracked resource back from its provider and updates state
to match what actually exists. Resources that were deleted out-of-band
are dropped from state; attribute drift is recorded.`,
	RunE: runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	wd, _, err := resolveProject(args)
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
		fmt.Println("State is empty, nothing to refresh.")
		return nil
	}

	registry := provider.NewRegistry()
	if err := loadStateProviders(registry, currentState); err != nil {
		return err
	}

	eng := engine.NewEngine(registry)
	results, err := eng.Refresh(ctx, currentState)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	var drifted, removed int
	for _, r := range results {
		switch {
		case r.Removed:
			removed++
			fmt.Println(colorize(ansiRed, fmt.Sprintf("  - %s no longer exists, removed from state", r.Address)))
		case r.Drifted:
			drifted++
			fmt.Println(colorize(ansiYellow, fmt.Sprintf("  ~ %s drifted, state updated", r.Address)))
		}
	}

	if drifted == 0 && removed == 0 {
		fmt.Println("State is in sync with real infrastructure.")
		return nil
	}

	if err := backend.Write(ctx, currentState); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	fmt.Printf("\nRefresh complete: %d drifted, %d removed.\n", drifted, removed)
	return nil
}
