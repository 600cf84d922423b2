package main

import (
	"context"
	"net"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	applog "github.com/cogu/apx-go/internal/logger"

	"github.com/cogu/apx-go/conn"
	"github.com/cogu/apx-go/node"
)

func newServeCmd() *cobra.Command {
	var (
		network  string
		address  string
		nodeName string
		provide  portSpecs
		require  portSpecs
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept connections and run the port-signature matcher",
		Long: `serve listens for incoming connections and runs the shared
port-signature matcher across all of them. With --node-name set, every
accepted connection also gets a fresh server-mode mirror of that node
attached, standing in for whatever out-of-band mechanism told this
process which node definition a connecting client will present (the
definition parser itself is out of scope; see --provide/--require).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := rootLogger()
			ln, err := net.Listen(network, address)
			if err != nil {
				return err
			}
			defer ln.Close()

			router := conn.NewRouter(log)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			go func() {
				<-ctx.Done()
				ln.Close()
			}()

			log.Infof("apxnode serve: listening on %s %s", network, address)
			for {
				raw, err := ln.Accept()
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				go serveConnection(ctx, raw, log, router, nodeName, provide, require)
			}
		},
	}
	cmd.Flags().StringVar(&network, "network", "tcp", "tcp or unix")
	cmd.Flags().StringVar(&address, "address", ":7700", "listen address")
	cmd.Flags().StringVar(&nodeName, "node-name", "", "attach a server-side node instance to every accepted connection")
	cmd.Flags().Var(&provide, "provide", "provide port as name:signature, repeatable")
	cmd.Flags().Var(&require, "require", "require port as name:signature, repeatable")
	return cmd
}

func serveConnection(ctx context.Context, raw net.Conn, log applog.Logger, router *conn.Router, nodeName string, provide, require portSpecs) {
	c := conn.NewServerConn(raw, log, router)
	defer c.Close()

	if nodeName != "" {
		inst, err := buildInstance(node.ServerMode, nodeName, provide, require)
		if err != nil {
			log.Errorf("apxnode serve: %s: %v", raw.RemoteAddr(), err)
			return
		}
		if err := c.AttachNode(inst, nil); err != nil {
			log.Errorf("apxnode serve: attach %s: %v", nodeName, err)
			return
		}
	}

	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		log.Warnf("apxnode serve: connection %s: %v", c.ConnectionID(), err)
	}
}

func buildInstance(mode node.Mode, name string, provide, require portSpecs) (*node.Instance, error) {
	provideDefs, err := buildPortDefs(provide)
	if err != nil {
		return nil, err
	}
	requireDefs, err := buildPortDefs(require)
	if err != nil {
		return nil, err
	}
	inst := node.New(mode)
	if err := inst.AttachDefinition(nil); err != nil {
		return nil, err
	}
	if err := inst.BuildInfo(node.NewInfo(name, provideDefs, requireDefs)); err != nil {
		return nil, err
	}
	if err := inst.BuildData(0); err != nil {
		return nil, err
	}
	return inst, nil
}
