package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and modify tracked state",
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources tracked in state",
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <address>",
	Short: "Show the recorded attributes of one resource",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateMvCmd = &cobra.Command{
	Use:   "mv <source> <destination>",
	Short: "Rename a resource in state without touching infrastructure",
	Args:  cobra.ExactArgs(2),
	RunE:  runStateMv,
}

var stateRmCmd = &cobra.Command{
	Use:   "rm <address>",
	Short: "Forget a resource without destroying it",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateRm,
}

func init() {
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateMvCmd)
	stateCmd.AddCommand(stateRmCmd)
}

func runStateList(cmd *cobra.Command, args []string) error {
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

	if len(st.Resources) == 0 {
		fmt.Println("State is empty.")
		return nil
	}

	var rows [][]string
	for _, rs := range st.Resources {
		id, _ := rs.Outputs["id"].(string)
		status := ""
		if rs.Tainted {
			status = "tainted"
		}
		rows = append(rows, []string{rs.Addr(), rs.Provider, id, status})
	}

	printTable(cmd.OutOrStdout(), []string{"address", "provider", "id", "status"}, rows)
	return nil
}

func printTable(writer io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(writer)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(rows)
	table.Render()
}

func runStateShow(cmd *cobra.Command, args []string) error {
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

	rs := st.Find(args[0])
	if rs == nil {
		return fmt.Errorf("resource %q not found in state", args[0])
	}

	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runStateMv(cmd *cobra.Command, args []string) error {
	src, dst := args[0], args[1]
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

	rs := st.Find(src)
	if rs == nil {
		return fmt.Errorf("resource %q not found in state", src)
	}
	if st.Find(dst) != nil {
		return fmt.Errorf("resource %q already exists in state", dst)
	}

	dstType, dstName, err := parseAddress(dst)
	if err != nil {
		return err
	}
	rs.Type = dstType
	rs.Name = dstName
	st.Serial++

	if err := backend.Write(ctx, st); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	writeAuditLog(AuditEntry{
		Operation: "state mv",
		Changes:   []AuditChange{{Address: src, Action: "mv"}, {Address: dst, Action: "mv"}},
	})
	fmt.Printf("Moved %s to %s\n", src, dst)
	return nil
}

func runStateRm(cmd *cobra.Command, args []string) error {
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

	found := false
	kept := st.Resources[:0]
	for _, rs := range st.Resources {
		if rs.Addr() == addr {
			found = true
			continue
		}
		kept = append(kept, rs)
	}
	if !found {
		return fmt.Errorf("resource %q not found in state", addr)
	}
	st.Resources = kept
	st.Serial++

	if err := backend.Write(ctx, st); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	writeAuditLog(AuditEntry{
		Operation: "state rm",
		Changes:   []AuditChange{{Address: addr, Action: "rm"}},
	})
	fmt.Printf("Removed %s from state. The underlying resource was not destroyed.\n", addr)
	return nil
}

// parseAddress splits a "type.name" address. Types themselves contain dots
// (net.Subnet), so the name is everything after the final dot.
func parseAddress(addr string) (typ, name string, err error) {
	idx := strings.LastIndex(addr, ".")
	if idx <= 0 || idx == len(addr)-1 {
		return "", "", fmt.Errorf("invalid resource address %q, expected <type>.<name>", addr)
	}
	return addr[:idx], addr[idx+1:], nil
}
