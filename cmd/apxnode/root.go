// Command apxnode is a thin cobra CLI over conn.Server/conn.Dial/node:
// serve runs a broker-side listener and port-signature matcher, dial
// opens a client connection and optionally publishes one value, and
// inspect prints a node's port-data layout without any networking.
package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	applog "github.com/cogu/apx-go/internal/logger"
)

var logLevel string

// newRootCmd returns the apxnode root command with serve/dial/inspect
// attached.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "apxnode",
		Short:         "Run and exercise an APX node connection",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "panic, fatal, error, warn, info, debug, trace")
	root.AddCommand(newServeCmd(), newDialCmd(), newInspectCmd())
	return root
}

// rootLogger builds the process-wide structured logger from the
// persistent --log-level flag.
func rootLogger() applog.Logger {
	base := logrus.New()
	if lvl, err := logrus.ParseLevel(logLevel); err == nil {
		base.SetLevel(lvl)
	}
	return applog.New(base)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.Fatal(err)
	}
}
