package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a new stratus project",
	Long: `Creates the .stratus directory and a starter main.pkl in the target
directory (current directory by default).`,
	RunE: runInit,
}

const starterConfig = `// Stratus configuration

resources {
  new {
    type = "net.VirtualNetwork"
    name = "main"
    provider = "sim"
    properties {
      ["cidr"] = "10.0.0.0/16"
      ["immutable"] = new Listing { "cidr" }
      ["tags"] = new Mapping { ["env"] = "dev" }
    }
  }
  new {
    type = "net.Subnet"
    name = "web"
    provider = "sim"
    properties {
      ["networkId"] = "ref://net.VirtualNetwork/main/id"
      ["cidr"] = "10.0.1.0/24"
      ["tags"] = new Mapping { ["env"] = "dev" }
    }
  }
}

outputs {
  ["network"] = "ref://net.VirtualNetwork/main/id"
}
`

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	if len(args) > 0 {
		dir, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve path %s: %w", args[0], err)
		}
	}

	if err := os.MkdirAll(filepath.Join(dir, stratusDir(), "policies"), 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", stratusDir(), err)
	}

	entryPoint := filepath.Join(dir, "main.pkl")
	if _, err := os.Stat(entryPoint); err == nil {
		fmt.Println("main.pkl already exists, leaving it untouched.")
	} else {
		if err := os.WriteFile(entryPoint, []byte(starterConfig), 0644); err != nil {
			return fmt.Errorf("failed to write main.pkl: %w", err)
		}
		fmt.Println("Created main.pkl")
	}

	fmt.Println("Stratus project initialized.")
	fmt.Println("\nNext steps:")
	fmt.Println("  stratus plan     # preview the changes")
	fmt.Println("  stratus apply    # create the resources")
	return nil
}
