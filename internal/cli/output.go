package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var outputJSON bool

var outputCmd = &cobra.Command{
	Use:   "output [name]",
	Short: "Show output values from the last apply",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runOutput,
}

func init() {
	outputCmd.Flags().BoolVar(&outputJSON, "json", false, "print outputs as JSON")
}

func runOutput(cmd *cobra.Command, args []string) error {
	wd, _, err := resolveProject(nil)
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

	if len(args) == 1 {
		val, ok := st.Outputs[args[0]]
		if !ok {
			return fmt.Errorf("output %q not found, run 'stratus apply' first", args[0])
		}
		if outputJSON {
			data, err := json.MarshalIndent(val, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
		} else {
			fmt.Printf("%v\n", val)
		}
		return nil
	}

	if len(st.Outputs) == 0 {
		fmt.Println("No outputs recorded. Run 'stratus apply' first.")
		return nil
	}

	if outputJSON {
		data, err := json.MarshalIndent(st.Outputs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	for k, v := range st.Outputs {
		fmt.Printf("%s = %v\n", k, v)
	}
	return nil
}
