package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stratus-io/stratus/internal/engine"
	"github.com/stratus-io/stratus/internal/ir"
	"github.com/stratus-io/stratus/internal/state"
)

var migrateProvider string

var migrateCmd = &cobra.Command{
	Use:   "migrate <terraform.tfstate>",
	Short: "Convert a Terraform state file into stratus state",
	Long: `Reads a Terraform v4 state file and writes an equivalent stratus state
for the current workspace. Resource attributes become outputs; the first
instance of each resource is taken. The existing stratus state, if any,
is overwritten, so review with 'stratus state list' afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateProvider, "provider", "sim", "provider to assign to migrated resources")
}

// The subset of the Terraform state schema we care about.
type tfState struct {
	Version   int            `json:"version"`
	Serial    int            `json:"serial"`
	Lineage   string         `json:"lineage"`
	Outputs   map[string]any `json:"outputs"`
	Resources []struct {
		Mode      string `json:"mode"`
		Type      string `json:"type"`
		Name      string `json:"name"`
		Instances []struct {
			Attributes   map[string]any `json:"attributes"`
			Dependencies []string       `json:"dependencies"`
		} `json:"instances"`
	} `json:"resources"`
}

func runMigrate(cmd *cobra.Command, args []string) error {
	wd, _, err := resolveProject(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	var tf tfState
	if err := json.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}
	if tf.Version != 4 {
		return fmt.Errorf("unsupported terraform state version %d, expected 4", tf.Version)
	}

	st := state.NewState()
	if tf.Lineage != "" {
		st.Lineage = tf.Lineage
	}
	st.Serial = tf.Serial

	skipped := 0
	for _, res := range tf.Resources {
		if res.Mode != "managed" || len(res.Instances) == 0 {
			skipped++
			continue
		}
		inst := res.Instances[0]
		st.Resources = append(st.Resources, &ir.ResourceState{
			Type:         res.Type,
			Name:         res.Name,
			Provider:     migrateProvider,
			Inputs:       inst.Attributes,
			InputsHash:   engine.HashProperties(inst.Attributes),
			Outputs:      inst.Attributes,
			Dependencies: inst.Dependencies,
		})
	}

	if len(tf.Outputs) > 0 {
		st.Outputs = make(map[string]any, len(tf.Outputs))
		for k, v := range tf.Outputs {
			if m, ok := v.(map[string]any); ok {
				st.Outputs[k] = m["value"]
			} else {
				st.Outputs[k] = v
			}
		}
	}

	backend, err := newStateBackend(wd)
	if err != nil {
		return err
	}
	if err := backend.Lock(); err != nil {
		return err
	}
	defer backend.Unlock()

	if err := backend.Write(ctx, st); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	writeAuditLog(AuditEntry{
		Operation: "migrate",
		Summary:   map[string]int{"migrated": len(st.Resources), "skipped": skipped},
	})
	fmt.Printf("Migrated %d resource(s) into workspace %q", len(st.Resources), currentWorkspace())
	if skipped > 0 {
		fmt.Printf(" (%d skipped)", skipped)
	}
	fmt.Println(".")
	return nil
}
