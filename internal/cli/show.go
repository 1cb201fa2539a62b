package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show [plan-file]",
	Short: "Show the current state, or a saved plan file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "print machine-readable JSON")
}

func runShow(cmd *cobra.Command, args []string) error {
	if len(args) == 1 && strings.HasSuffix(args[0], ".json") {
		return showPlanFile(args[0])
	}

	wd, _, err := resolveProject(args)
	if err != nil {
		return err
	}
	backend, err := newStateBackend(wd)
	if err != nil {
		return err
	}
	st, err := backend.Read(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if showJSON {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(st.Resources) == 0 {
		fmt.Println("State is empty.")
		return nil
	}

	fmt.Printf("State serial %d, lineage %s\n", st.Serial, st.Lineage)
	for _, rs := range st.Resources {
		fmt.Printf("\nresource %q %q {\n", rs.Type, rs.Name)
		for k, v := range rs.Outputs {
			fmt.Printf("    %s = %s\n", k, formatValue(v))
		}
		if rs.Tainted {
			fmt.Println("    # tainted")
		}
		fmt.Println("}")
	}
	return nil
}

func showPlanFile(path string) error {
	plan, err := readPlanFile(path)
	if err != nil {
		return err
	}

	if showJSON {
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Plan created at %s\n", plan.Metadata.Timestamp.Format("2006-01-02 15:04:05 MST"))
	renderPlanChanges(plan)
	renderPlanSummary(plan)
	return nil
}
