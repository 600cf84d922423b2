package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/cogu/apx-go/conn"
	"github.com/cogu/apx-go/dtl"
	"github.com/cogu/apx-go/node"
)

func newDialCmd() *cobra.Command {
	var (
		network    string
		address    string
		nodeName   string
		provide    portSpecs
		require    portSpecs
		publish    string
		publishVal string
	)
	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Open a client connection, optionally publish one value",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := rootLogger()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			c, err := conn.Dial(ctx, network, address, log)
			if err != nil {
				return err
			}
			defer c.Close()

			inst, err := buildInstance(node.ClientMode, nodeName, provide, require)
			if err != nil {
				return err
			}

			onReceive := func(port string, v *dtl.Value) {
				fmt.Printf("%s.%s <- %s\n", nodeName, port, v.Kind())
			}
			if err := c.AttachNode(inst, onReceive); err != nil {
				return err
			}

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			runErr := make(chan error, 1)
			go func() { runErr <- c.Run(runCtx) }()

			if publish != "" {
				portID, v, err := parsePublishFlag(inst, publish, publishVal)
				if err != nil {
					return err
				}
				if err := c.Publish(inst, portID, v); err != nil {
					return err
				}
				fmt.Printf("published %s = %s\n", publish, publishVal)
			}

			select {
			case err := <-runErr:
				return err
			case <-ctx.Done():
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&network, "network", "tcp", "tcp or unix")
	cmd.Flags().StringVar(&address, "address", "localhost:7700", "broker address")
	cmd.Flags().StringVar(&nodeName, "node-name", "Node", "node name to present")
	cmd.Flags().Var(&provide, "provide", "provide port as name:signature, repeatable")
	cmd.Flags().Var(&require, "require", "require port as name:signature, repeatable")
	cmd.Flags().StringVar(&publish, "publish", "", "provide port name to publish a value to")
	cmd.Flags().StringVar(&publishVal, "value", "0", "unsigned integer value to publish")
	return cmd
}

// parsePublishFlag resolves --publish's port name to its id within
// inst's provide ports and decodes --value as an unsigned integer
// (the only scalar kind programsForSignature currently builds pack
// programs for, besides bool).
func parsePublishFlag(inst *node.Instance, name, raw string) (int, *dtl.Value, error) {
	for i, p := range inst.Info.ProvidePorts {
		if p.Name != name {
			continue
		}
		if p.Signature == "bool" {
			return i, dtl.NewBool(raw == "true" || raw == "1"), nil
		}
		n, err := parseUint64(raw)
		if err != nil {
			return 0, nil, fmt.Errorf("apxnode: --value %q: %w", raw, err)
		}
		return i, dtl.NewUint(n), nil
	}
	return 0, nil, fmt.Errorf("apxnode: no provide port named %q", name)
}
