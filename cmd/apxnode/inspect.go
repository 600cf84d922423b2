package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cogu/apx-go/node"
)

func newInspectCmd() *cobra.Command {
	var (
		nodeName string
		provide  portSpecs
		require  portSpecs
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a node's port-data layout without opening a connection",
		Long: `inspect builds the same node.Info/node.Data a serve/dial node
would and prints each port's offset, size and signature — useful for
checking a --provide/--require port list lays out the way you expect
before pointing it at a real broker.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := buildInstance(node.ClientMode, nodeName, provide, require)
			if err != nil {
				return err
			}
			printLayout(cmd, "provide", instProvideTable(inst))
			printLayout(cmd, "require", instRequireTable(inst))
			return nil
		},
	}
	cmd.Flags().StringVar(&nodeName, "node-name", "Node", "node name")
	cmd.Flags().Var(&provide, "provide", "provide port as name:signature, repeatable")
	cmd.Flags().Var(&require, "require", "require port as name:signature, repeatable")
	return cmd
}

type portRow struct {
	name      string
	signature string
	offset    int
	size      int
}

func instProvideTable(inst *node.Instance) []portRow {
	rows := make([]portRow, len(inst.Info.ProvidePorts))
	for i, p := range inst.Info.ProvidePorts {
		rows[i] = portRow{p.Name, p.Signature, p.Props.Offset, p.Props.Size}
	}
	return rows
}

func instRequireTable(inst *node.Instance) []portRow {
	rows := make([]portRow, len(inst.Info.RequirePorts))
	for i, p := range inst.Info.RequirePorts {
		rows[i] = portRow{p.Name, p.Signature, p.Props.Offset, p.Props.Size}
	}
	return rows
}

func printLayout(cmd *cobra.Command, side string, rows []portRow) {
	out := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintf(out, "no %s ports\n", side)
		return
	}
	fmt.Fprintf(out, "%s ports (%d bytes total):\n", side, totalBytes(rows))
	for _, r := range rows {
		fmt.Fprintf(out, "  %-16s %-6s offset=%-4d size=%d\n", r.name, r.signature, r.offset, r.size)
	}
}

func totalBytes(rows []portRow) int {
	total := 0
	for _, r := range rows {
		if end := r.offset + r.size; end > total {
			total = end
		}
	}
	return total
}
