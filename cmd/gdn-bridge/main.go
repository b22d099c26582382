package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	conn := &connectionFlags{}

	rootCmd := &cobra.Command{
		Use:   "gdn-bridge",
		Short: "Talk to a running GDN host over RabbitMQ",
		Long: `gdn-bridge connects to GDN through the broker the host is attached to.
It can watch the events GDN sends, check that the host is responsive, and
send log lines and calls to it.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	conn.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newListenCommand(conn),
		newPingCommand(conn),
		newLogCommand(conn),
		newCallCommand(conn),
	)
	return rootCmd
}
