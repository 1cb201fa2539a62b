package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var taintCmd = &cobra.Command{
	Use:   "taint <address>",
	Short: "Mark a resource for replacement on the next apply",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaint(true),
}

var untaintCmd = &cobra.Command{
	Use:   "untaint <address>",
	Short: "Clear the replacement mark from a resource",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaint(false),
}

func runTaint(taint bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		addr := args[0]
		wd, _, err := resolveProject(nil)
		if err != nil {
			return err
		}
		backend, err := newStateBackend(wd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := backend.Lock(); err != nil {
			return err
		}
		defer backend.Unlock()

		st, err := backend.Read(ctx)
		if err != nil {
			return fmt.Errorf("failed to read state: %w", err)
		}

		rs := st.Find(addr)
		if rs == nil {
			return fmt.Errorf("resource %q not found in state", addr)
		}
		if rs.Tainted == taint {
			if taint {
				fmt.Printf("%s is already tainted.\n", addr)
			} else {
				fmt.Printf("%s is not tainted.\n", addr)
			}
			return nil
		}

		rs.Tainted = taint
		st.Serial++

		if err := backend.Write(ctx, st); err != nil {
			return fmt.Errorf("failed to write state: %w", err)
		}

		if taint {
			fmt.Printf("%s marked as tainted, it will be replaced on the next apply.\n", addr)
		} else {
			fmt.Printf("%s is no longer tainted.\n", addr)
		}
		return nil
	}
}
