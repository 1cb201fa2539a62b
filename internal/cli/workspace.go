package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stratus-io/stratus/internal/state"
)

const defaultWorkspace = "default"

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage isolated state environments",
	Long: `Workspaces keep independent copies of state for the same configuration,
so a single project can drive multiple environments (dev, staging, prod).`,
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces",
	RunE:  runWorkspaceList,
}

var workspaceShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(currentWorkspace())
		return nil
	},
}

var workspaceNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a new workspace and switch to it",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceNew,
}

var workspaceSelectCmd = &cobra.Command{
	Use:   "select <name>",
	Short: "Switch to an existing workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceSelect,
}

var workspaceDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a workspace and its state",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceDelete,
}

func init() {
	workspaceCmd.AddCommand(workspaceListCmd)
	workspaceCmd.AddCommand(workspaceShowCmd)
	workspaceCmd.AddCommand(workspaceNewCmd)
	workspaceCmd.AddCommand(workspaceSelectCmd)
	workspaceCmd.AddCommand(workspaceDeleteCmd)
}

func stratusDir() string {
	return ".stratus"
}

func workspaceFile() string {
	return filepath.Join(stratusDir(), "workspace")
}

// currentWorkspace reads the selected workspace name, falling back to
// "default" when none has been selected.
func currentWorkspace() string {
	data, err := os.ReadFile(workspaceFile())
	if err != nil {
		return defaultWorkspace
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return defaultWorkspace
	}
	return name
}

// WorkspaceStatePath returns the state file path for the current workspace,
// relative to the project directory. The default workspace keeps the historic
// path so existing projects are unaffected.
func WorkspaceStatePath() string {
	ws := currentWorkspace()
	if ws == defaultWorkspace {
		return filepath.Join(stratusDir(), "state.json")
	}
	return filepath.Join(stratusDir(), fmt.Sprintf("state.%s.json", ws))
}

func workspaceStatePathFor(name string) string {
	if name == defaultWorkspace {
		return filepath.Join(stratusDir(), "state.json")
	}
	return filepath.Join(stratusDir(), fmt.Sprintf("state.%s.json", name))
}

func listWorkspaces() ([]string, error) {
	names := map[string]bool{defaultWorkspace: true}

	entries, err := os.ReadDir(stratusDir())
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	for _, e := range entries {
		n := e.Name()
		if strings.HasPrefix(n, "state.") && strings.HasSuffix(n, ".json") {
			ws := strings.TrimSuffix(strings.TrimPrefix(n, "state."), ".json")
			if ws != "" {
				names[ws] = true
			}
		}
	}

	var out []string
	for n := range names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func runWorkspaceList(cmd *cobra.Command, args []string) error {
	names, err := listWorkspaces()
	if err != nil {
		return err
	}
	current := currentWorkspace()
	for _, n := range names {
		if n == current {
			fmt.Printf("* %s\n", colorize(ansiGreen, n))
		} else {
			fmt.Printf("  %s\n", n)
		}
	}
	return nil
}

func runWorkspaceNew(cmd *cobra.Command, args []string) error {
	name := args[0]
	path := workspaceStatePathFor(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("workspace %q already exists", name)
	}

	if err := os.MkdirAll(stratusDir(), 0o755); err != nil {
		return err
	}
	data, err := state.MarshalState(state.NewState())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to create workspace state: %w", err)
	}
	if err := os.WriteFile(workspaceFile(), []byte(name+"\n"), 0o644); err != nil {
		return err
	}
	fmt.Printf("Created and switched to workspace %q\n", name)
	return nil
}

func runWorkspaceSelect(cmd *cobra.Command, args []string) error {
	name := args[0]
	if name != defaultWorkspace {
		if _, err := os.Stat(workspaceStatePathFor(name)); err != nil {
			return fmt.Errorf("workspace %q does not exist, create it with 'stratus workspace new %s'", name, name)
		}
	}
	if err := os.MkdirAll(stratusDir(), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(workspaceFile(), []byte(name+"\n"), 0o644); err != nil {
		return err
	}
	fmt.Printf("Switched to workspace %q\n", name)
	return nil
}

func runWorkspaceDelete(cmd *cobra.Command, args []string) error {
	name := args[0]
	if name == defaultWorkspace {
		return fmt.Errorf("the default workspace cannot be deleted")
	}
	if name == currentWorkspace() {
		return fmt.Errorf("cannot delete the active workspace, select another one first")
	}
	path := workspaceStatePathFor(name)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("workspace %q does not exist", name)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete workspace state: %w", err)
	}
	fmt.Printf("Deleted workspace %q\n", name)
	return nil
}
