package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/stratus-io/stratus/internal/ir"
	"github.com/stratus-io/stratus/internal/provider"
	"github.com/stratus-io/stratus/internal/state"
	pkgprovider "github.com/stratus-io/stratus/pkg/provider"
)

const (
	ansiReset  = "\033[0m"
	ansiGreen  = "\033[32m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
)

func colorize(color, s string) string {
	if noColor {
		return s
	}
	return color + s + ansiReset
}

// resolveProject determines the project directory and entry point from an
// optional positional argument (directory or .pkl file).
func resolveProject(args []string) (string, string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", "", fmt.Errorf("failed to get working directory: %w", err)
	}
	entryPoint := "main.pkl"

	if len(args) > 0 {
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve path %s: %w", args[0], err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return "", "", fmt.Errorf("failed to stat path %s: %w", args[0], err)
		}
		if info.IsDir() {
			wd = absPath
		} else {
			wd = filepath.Dir(absPath)
			entryPoint = filepath.Base(absPath)
		}
	}
	return wd, entryPoint, nil
}

// newStateBackend builds the state backend for a project directory,
// honoring .stratus/backend.yaml and the selected workspace.
func newStateBackend(wd string) (state.Backend, error) {
	cfg, err := state.LoadBackendConfig(filepath.Join(wd, stratusDir(), "backend.yaml"))
	if err != nil {
		return nil, err
	}
	return state.NewBackend(cfg, filepath.Join(wd, WorkspaceStatePath()))
}

// loadRequiredProviders auto-loads all providers referenced by config resources.
func loadRequiredProviders(registry *provider.Registry, cfg *ir.Config) error {
	seen := make(map[string]bool)
	for _, res := range cfg.Resources {
		if res.Provider != "" && !seen[res.Provider] {
			seen[res.Provider] = true
			if err := registry.LoadProvider(res.Provider); err != nil {
				return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
			}
		}
	}
	return nil
}

// loadStateProviders auto-loads all providers referenced by state resources (needed for DELETE).
func loadStateProviders(registry *provider.Registry, s *ir.State) error {
	seen := make(map[string]bool)
	for _, res := range s.Resources {
		if res.Provider != "" && !seen[res.Provider] {
			seen[res.Provider] = true
			if err := registry.LoadProvider(res.Provider); err != nil {
				return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
			}
		}
	}
	return nil
}

func actionSymbol(action pkgprovider.Action) string {
	switch action {
	case pkgprovider.ActionCreate:
		return "+"
	case pkgprovider.ActionDelete:
		return "-"
	case pkgprovider.ActionReplace:
		return "-/+"
	case pkgprovider.ActionNoop:
		return " "
	default:
		return "~"
	}
}

func actionColor(action pkgprovider.Action) string {
	switch action {
	case pkgprovider.ActionCreate:
		return ansiGreen
	case pkgprovider.ActionDelete:
		return ansiRed
	case pkgprovider.ActionUpdate, pkgprovider.ActionReplace:
		return ansiYellow
	default:
		return ""
	}
}

// renderPlanChanges prints the detailed change list for a plan.
func renderPlanChanges(plan *ir.Plan) {
	for _, change := range plan.Changes {
		if change.Action == pkgprovider.ActionNoop {
			continue
		}

		color := actionColor(change.Action)

		var resourceType, resourceName string
		if change.Desired != nil {
			resourceType = change.Desired.Type
			resourceName = change.Desired.Name
		} else if change.Prior != nil {
			resourceType = change.Prior.Type
			resourceName = change.Prior.Name
		}

		fmt.Printf("\n%s\n", colorize(color, fmt.Sprintf("  # %s will be %s", change.Address, change.Action)))
		fmt.Printf("%s\n", colorize(color, fmt.Sprintf("  %s resource %q %q {", actionSymbol(change.Action), resourceType, resourceName)))

		if len(change.Diff) > 0 {
			renderPropertyDiff(change)
		} else if change.Desired != nil {
			for k, v := range change.Desired.Properties {
				fmt.Printf("%s\n", colorize(color, fmt.Sprintf("      %s = %s", k, formatValue(v))))
			}
		}
		fmt.Printf("%s\n", colorize(color, "    }"))
	}
}

// renderPropertyDiff prints structured property diffs.
func renderPropertyDiff(change *ir.ResourceChange) {
	for key, diff := range change.Diff {
		switch diff.Action {
		case pkgprovider.ActionCreate:
			fmt.Printf("%s\n", colorize(ansiGreen, fmt.Sprintf("      + %s = %s", key, formatValue(diff.After))))
		case pkgprovider.ActionDelete:
			fmt.Printf("%s\n", colorize(ansiRed, fmt.Sprintf("      - %s = %s", key, formatValue(diff.Before))))
		default:
			suffix := ""
			if diff.ForcesReplacement {
				suffix = " # forces replacement"
			}
			fmt.Printf("%s\n", colorize(ansiYellow, fmt.Sprintf("      ~ %s = %s -> %s%s",
				key, formatValue(diff.Before), formatValue(diff.After), suffix)))
		}
	}
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// renderPlanSummary prints the plan summary counts.
func renderPlanSummary(plan *ir.Plan) {
	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create:  %d\n", plan.Summary.Create)
	fmt.Printf("  Update:  %d\n", plan.Summary.Update)
	fmt.Printf("  Delete:  %d\n", plan.Summary.Delete)
	fmt.Printf("  Replace: %d\n", plan.Summary.Replace)
	fmt.Printf("  NoOp:    %d\n", plan.Summary.NoOp)
}

func confirm(prompt string) bool {
	fmt.Printf("%s (y/n): ", prompt)
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "yes"
}
